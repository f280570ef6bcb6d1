package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

// stubAnswerService records the last call and returns a canned answer.
type stubAnswerService struct {
	answer *models.Answer
	err    error

	query         string
	clarification *models.ClarificationContext
}

func (s *stubAnswerService) ResolveAndAnswer(ctx context.Context, query string, clarification *models.ClarificationContext) (*models.Answer, error) {
	s.query = query
	s.clarification = clarification
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func newTestDatasetService() services.DatasetService {
	return services.NewDatasetService(repositories.NewMemoryRowStore(), nil, cache.New(8, time.Hour), 100, zap.NewNop())
}

// multipartUpload builds a POST /api/datasets request carrying content as
// the file field plus any extra form fields.
func multipartUpload(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
