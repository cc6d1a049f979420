package envelope

import (
	"encoding/json"
	"testing"

	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalShapes(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{"text", Text("hello"), `{"type":"text","content":"hello"}`},
		{"image", Image("data:image/jpeg;base64,AA=="), `{"type":"image","content":"data:image/jpeg;base64,AA=="}`},
		{"deep dive", DeepDive([]string{"a", "b"}), `{"type":"deep_dive","content":["a","b"]}`},
		{"empty deep dive", DeepDive(nil), `{"type":"deep_dive","content":[]}`},
		{"error", Error("bad request"), `{"type":"error","content":"bad request"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	var e Envelope
	assert.Error(t, json.Unmarshal([]byte(`{"type":"audio","content":"x"}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"text","content":["x"]}`), &e))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"deep_dive","content":["p1","p2"]}`), &e))
	assert.Equal(t, []string{"p1", "p2"}, e.Perspectives)
}

func TestFromResult(t *testing.T) {
	assert.Equal(t, Text("answer"), FromResult(llm.Success("gemini", "m", "answer")))

	failed := FromResult(llm.Fail("gemini", "m", &llm.Failure{Class: llm.ClassTimeout, Reason: "slow"}))
	assert.Equal(t, TypeText, failed.Type)
	assert.Equal(t, ProviderApology, failed.Text)
}

func TestDeepDiveCopiesInput(t *testing.T) {
	in := []string{"a"}
	e := DeepDive(in)
	in[0] = "changed"
	assert.Equal(t, []string{"a"}, e.Perspectives)
}
