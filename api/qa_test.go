package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/services"
)

const petsText = "Cats are small furry pets that sleep a lot. Dogs are loyal companions that love walks."

func TestProcessDocuments(t *testing.T) {
	env := setupTestEnv(t)

	w := env.upload(t, map[string]string{"session_id": "s1"}, map[string]string{"pets.txt": petsText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result services.ProcessResult
	resp := decode(t, w, &result)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.StoreVersion)
	assert.Greater(t, result.ChunkCount, 1)

	w = env.do(t, http.MethodGet, "/api/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess model.SessionResponse
	decode(t, w, &sess)
	assert.True(t, sess.HasDocuments)
	assert.Equal(t, 1, sess.StoreVersion)
}

func TestProcessDocuments_Errors(t *testing.T) {
	env := setupTestEnv(t)

	// 缺少文件
	w := env.upload(t, map[string]string{"session_id": "s1"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 不支持的文件类型
	w = env.upload(t, nil, map[string]string{"image.png": "\x89PNG"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 超过上传大小限制
	w = env.upload(t, nil, map[string]string{"big.txt": strings.Repeat("a", 1<<20+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessDocuments_AsyncWithoutQueue(t *testing.T) {
	env := setupTestEnv(t)

	w := env.upload(t, map[string]string{"async": "true"}, map[string]string{"pets.txt": petsText})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRestoreDocuments(t *testing.T) {
	env := setupTestEnv(t)

	w := env.upload(t, map[string]string{"session_id": "s1"}, map[string]string{"pets.txt": petsText})
	require.Equal(t, http.StatusOK, w.Code)
	var processed services.ProcessResult
	decode(t, w, &processed)
	require.NotEmpty(t, processed.SnapshotKey)

	// 新会话从快照恢复
	require.NoError(t, env.Sessions.Teardown("s1"))
	w = env.do(t, http.MethodPost, "/api/documents/restore", map[string]string{"session_id": "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var restored services.ProcessResult
	decode(t, w, &restored)
	assert.Equal(t, processed.ChunkCount, restored.ChunkCount)

	w = env.do(t, http.MethodPost, "/api/documents/restore", map[string]string{"session_id": "never"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnswerQuestion(t *testing.T) {
	env := setupTestEnv(t)
	w := env.upload(t, map[string]string{"session_id": "s1"}, map[string]string{"pets.txt": petsText})
	require.Equal(t, http.StatusOK, w.Code)

	env.LLM.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "What do cats do?")
	})).Return(&llm.Response{Text: "  Cats sleep a lot.  "}, nil).Once()

	w = env.do(t, http.MethodPost, "/api/qa", map[string]string{"session_id": "s1", "question": "What do cats do?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var answer model.QAResponse
	decode(t, w, &answer)
	assert.Equal(t, "What do cats do?", answer.Question)
	assert.Equal(t, "Cats sleep a lot.", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "pets.txt", answer.Sources[0].FileName)
}

func TestAnswerQuestion_Errors(t *testing.T) {
	env := setupTestEnv(t)

	// 缺少问题
	w := env.do(t, http.MethodPost, "/api/qa", map[string]string{"session_id": "s1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未上传文档
	w = env.do(t, http.MethodPost, "/api/qa", map[string]string{"session_id": "s1", "question": "anything?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w, nil)
	assert.Equal(t, services.ErrNoDocuments.Error(), resp.Message)

	// 模型调用失败
	_, err := env.Documents.Process(context.Background(), "s1", []document.Document{document.NewTextDocument("pets.txt", petsText)})
	require.NoError(t, err)
	env.LLM.On("Generate", mock.Anything, mock.Anything).
		Return(nil, llm.NewLLMError(llm.ErrCodeServerError, "upstream down")).Once()
	w = env.do(t, http.MethodPost, "/api/qa", map[string]string{"session_id": "s1", "question": "anything?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestChatAndHistory(t *testing.T) {
	env := setupTestEnv(t)
	w := env.upload(t, map[string]string{"session_id": "s1"}, map[string]string{"pets.txt": petsText})
	require.Equal(t, http.StatusOK, w.Code)

	env.LLM.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Tell me about dogs") && !strings.Contains(p, "Follow Up Input:")
	})).Return(&llm.Response{Text: "Dogs are loyal."}, nil).Once()

	w = env.do(t, http.MethodPost, "/api/chat", map[string]string{"session_id": "s1", "question": "Tell me about dogs"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first model.QAResponse
	decode(t, w, &first)
	assert.Equal(t, "Dogs are loyal.", first.Answer)

	// 第二轮先改写问题，再回答
	env.LLM.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Follow Up Input: Do they like walks?")
	})).Return(&llm.Response{Text: "Do dogs like walks?"}, nil).Once()
	env.LLM.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Do dogs like walks?") && !strings.Contains(p, "Follow Up Input:")
	})).Return(&llm.Response{Text: "Yes, dogs love walks."}, nil).Once()

	w = env.do(t, http.MethodPost, "/api/chat", map[string]string{"session_id": "s1", "question": "Do they like walks?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second model.QAResponse
	decode(t, w, &second)
	assert.Equal(t, "Do they like walks?", second.Question)
	assert.Equal(t, "Do dogs like walks?", second.Standalone)
	assert.Equal(t, "Yes, dogs love walks.", second.Answer)

	w = env.do(t, http.MethodGet, "/api/chat/s1/history?page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history model.ChatHistoryResponse
	decode(t, w, &history)
	assert.EqualValues(t, 4, history.Total)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "Yes, dogs love walks.", history.Messages[3].Content)

	w = env.do(t, http.MethodGet, "/api/chat/s1/history?page=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/chat/unknown/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
