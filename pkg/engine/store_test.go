package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/engine"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/rpc"
	"github.com/m-mizutani/gt"
)

type response struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	} `json:"error"`
}

func runStoreEngine(t *testing.T, requests []string) []response {
	t.Helper()

	var out bytes.Buffer
	srv := rpc.NewServer(strings.NewReader(strings.Join(requests, "\n")+"\n"), &out)

	eng := engine.NewStoreEngine()
	eng.Bind(srv)
	t.Cleanup(func() {
		_ = eng.Close()
	})

	gt.NoError(t, srv.Serve(context.Background()))

	var responses []response
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var resp response
		gt.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestStoreEngineLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		`{"id":2,"method":"store/add","params":{"text":"grpc retries are capped at 3","embedding":[1,0,0]}}`,
		`{"id":3,"method":"store/add","params":{"text":"the queue drains hourly","embedding":[0,1,0]}}`,
		`{"id":4,"method":"store/search","params":{"embedding":[1,0.1,0],"topK":1}}`,
		`{"id":5,"method":"store/searchByPattern","params":{"pattern":"queue"}}`,
		`{"id":6,"method":"store/list","params":{}}`,
		`{"id":7,"method":"store/close"}`,
	})

	gt.A(t, responses).Length(7)
	for _, resp := range responses {
		gt.V(t, resp.Error).Nil()
	}

	var initRes struct {
		Entries   int `json:"entries"`
		Dimension int `json:"dimension"`
	}
	gt.NoError(t, json.Unmarshal(responses[0].Result, &initRes))
	gt.Equal(t, initRes.Entries, 0)

	var searchRes struct {
		Hits []struct {
			Entry model.Entry `json:"entry"`
			Score float64     `json:"score"`
		} `json:"hits"`
	}
	gt.NoError(t, json.Unmarshal(responses[3].Result, &searchRes))
	gt.A(t, searchRes.Hits).Length(1)
	gt.S(t, searchRes.Hits[0].Entry.Text).Contains("grpc")
	gt.Number(t, searchRes.Hits[0].Score).GreaterOrEqual(0.9)

	var patternRes struct {
		Entries []model.Entry `json:"entries"`
	}
	gt.NoError(t, json.Unmarshal(responses[4].Result, &patternRes))
	gt.A(t, patternRes.Entries).Length(1)

	var listRes struct {
		Entries []model.Entry `json:"entries"`
	}
	gt.NoError(t, json.Unmarshal(responses[5].Result, &listRes))
	gt.A(t, listRes.Entries).Length(2)
}

func TestStoreEngineNotLoaded(t *testing.T) {
	responses := runStoreEngine(t, []string{
		`{"id":1,"method":"store/add","params":{"text":"x","embedding":[1]}}`,
	})

	gt.A(t, responses).Length(1)
	gt.V(t, responses[0].Error).NotNil()
	gt.Equal(t, responses[0].Error.Code, rpc.CodeStoreError)
	gt.Equal(t, responses[0].Error.Data["code"], model.CodeNotLoaded)
}

func TestStoreEngineDuplicateCarriesSimilarity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		`{"id":2,"method":"store/add","params":{"text":"one","embedding":[1,0]}}`,
		`{"id":3,"method":"store/add","params":{"text":"one again","embedding":[1,0]}}`,
		`{"id":4,"method":"store/add","params":{"text":"one again","embedding":[1,0],"force":true}}`,
	})

	gt.A(t, responses).Length(4)
	gt.V(t, responses[2].Error).NotNil()
	gt.Equal(t, responses[2].Error.Data["code"], model.CodeDuplicate)

	similarity, ok := responses[2].Error.Data["similarity"].(float64)
	gt.True(t, ok)
	gt.Number(t, similarity).GreaterOrEqual(0.95)

	gt.V(t, responses[3].Error).Nil()
}

func TestStoreEngineInvalidParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		`{"id":2,"method":"store/search","params":{"embedding":[1,0],"topK":0}}`,
		`{"id":3,"method":"store/initialize","params":{}}`,
		`{"id":4,"method":"store/get","params":{}}`,
		`{"id":5,"method":"store/add","params":"not an object"}`,
	})

	gt.A(t, responses).Length(5)
	for _, resp := range responses[1:] {
		gt.V(t, resp.Error).NotNil()
		gt.Equal(t, resp.Error.Code, rpc.CodeInvalidParams)
	}
}

func TestStoreEngineInitializeIdempotent(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.jsonl")
	second := filepath.Join(dir, "second.jsonl")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, first),
		`{"id":2,"method":"store/add","params":{"text":"in first","embedding":[1,0]}}`,
		fmt.Sprintf(`{"id":3,"method":"store/initialize","params":{"path":%q}}`, first),
		fmt.Sprintf(`{"id":4,"method":"store/initialize","params":{"path":%q}}`, second),
		`{"id":5,"method":"store/list","params":{}}`,
	})

	gt.A(t, responses).Length(5)
	for _, resp := range responses {
		gt.V(t, resp.Error).Nil()
	}

	// Re-initialize on the same path reports the loaded entry.
	var sameRes struct {
		Entries int `json:"entries"`
	}
	gt.NoError(t, json.Unmarshal(responses[2].Result, &sameRes))
	gt.Equal(t, sameRes.Entries, 1)

	// Switching paths opens a fresh, empty store.
	var listRes struct {
		Entries []model.Entry `json:"entries"`
	}
	gt.NoError(t, json.Unmarshal(responses[4].Result, &listRes))
	gt.A(t, listRes.Entries).Length(0)
}

func TestStoreEngineGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	setup := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		`{"id":2,"method":"store/add","params":{"text":"target","embedding":[1,0]}}`,
	})
	var added struct {
		ID string `json:"id"`
	}
	gt.NoError(t, json.Unmarshal(setup[1].Result, &added))
	gt.NotEqual(t, added.ID, "")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		fmt.Sprintf(`{"id":2,"method":"store/get","params":{"id":%q}}`, added.ID),
		fmt.Sprintf(`{"id":3,"method":"store/remove","params":{"id":%q}}`, added.ID),
		fmt.Sprintf(`{"id":4,"method":"store/get","params":{"id":%q}}`, added.ID),
	})

	gt.A(t, responses).Length(4)
	gt.V(t, responses[1].Error).Nil()
	gt.S(t, string(responses[1].Result)).Contains("target")
	gt.V(t, responses[2].Error).Nil()

	gt.V(t, responses[3].Error).NotNil()
	gt.Equal(t, responses[3].Error.Data["code"], model.CodeEntryNotFound)
	missingID, ok := responses[3].Error.Data["id"].(string)
	gt.True(t, ok)
	gt.Equal(t, missingID, added.ID)
}

func TestStoreEngineSearchWithoutMinScore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	responses := runStoreEngine(t, []string{
		fmt.Sprintf(`{"id":1,"method":"store/initialize","params":{"path":%q}}`, path),
		`{"id":2,"method":"store/add","params":{"text":"opposite","embedding":[1,0]}}`,
		`{"id":3,"method":"store/search","params":{"embedding":[-1,0],"topK":5}}`,
		`{"id":4,"method":"store/search","params":{"embedding":[-1,0],"topK":5,"minScore":0}}`,
	})

	gt.A(t, responses).Length(4)
	for _, resp := range responses {
		gt.V(t, resp.Error).Nil()
	}

	type hits struct {
		Hits []struct {
			Score float64 `json:"score"`
		} `json:"hits"`
	}

	// Without minScore the anti-parallel entry still comes back.
	var unfiltered hits
	gt.NoError(t, json.Unmarshal(responses[2].Result, &unfiltered))
	gt.A(t, unfiltered.Hits).Length(1)
	gt.Number(t, unfiltered.Hits[0].Score).Less(0)

	// An explicit minScore of 0 filters it out.
	var filtered hits
	gt.NoError(t, json.Unmarshal(responses[3].Result, &filtered))
	gt.A(t, filtered.Hits).Length(0)
}

func TestInferEnginePrompt(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register("hash-test", adapter.NewHashEmbedder(8))

	var out bytes.Buffer
	input := `{"id":1,"method":"prompt","params":{"model":"hash-test","texts":["alpha","beta"]}}` + "\n" +
		`{"id":2,"method":"prompt","params":{"model":"unknown","texts":["x"]}}` + "\n" +
		`{"id":3,"method":"prompt","params":{"texts":[]}}` + "\n"

	srv := rpc.NewServer(strings.NewReader(input), &out)
	engine.NewInferEngine(registry).Bind(srv)
	gt.NoError(t, srv.Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	gt.A(t, lines).Length(3)

	var ok struct {
		Result struct {
			Content []struct {
				Type     string `json:"type"`
				MimeType string `json:"mimeType"`
				Data     struct {
					Embeddings [][]float32 `json:"embeddings"`
				} `json:"data"`
			} `json:"content"`
			Usage struct {
				PromptTokens int `json:"promptTokens"`
			} `json:"usage"`
		} `json:"result"`
	}
	gt.NoError(t, json.Unmarshal([]byte(lines[0]), &ok))
	gt.A(t, ok.Result.Content).Length(1)
	gt.Equal(t, ok.Result.Content[0].MimeType, "application/json")
	gt.A(t, ok.Result.Content[0].Data.Embeddings).Length(2)
	gt.A(t, ok.Result.Content[0].Data.Embeddings[0]).Length(8)
	gt.Number(t, ok.Result.Usage.PromptTokens).GreaterOrEqual(1)

	var missing response
	gt.NoError(t, json.Unmarshal([]byte(lines[1]), &missing))
	gt.V(t, missing.Error).NotNil()
	gt.Equal(t, missing.Error.Code, rpc.CodeModelNotFound)
	gt.Equal(t, missing.Error.Data["code"], model.CodeModelNotLoaded)

	var empty response
	gt.NoError(t, json.Unmarshal([]byte(lines[2]), &empty))
	gt.V(t, empty.Error).NotNil()
	gt.Equal(t, empty.Error.Code, rpc.CodeInvalidParams)
}
