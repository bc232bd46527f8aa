package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterForReusesLimiterPerNode(t *testing.T) {
	s := New(nil, nil, nil, Config{RateLimitPerSec: 1, RateLimitBurst: 1})
	a := s.limiterFor("node-1")
	b := s.limiterFor("node-1")
	assert.Same(t, a, b)

	c := s.limiterFor("node-2")
	assert.NotSame(t, a, c)
}

func TestHandlePushBadJSONReturns400(t *testing.T) {
	s := New(nil, nil, nil, Config{})
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	s.handlePush(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
