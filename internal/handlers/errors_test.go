package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
)

func TestWriteErrorMapsSentinels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	cases := []struct {
		err  error
		code int
	}{
		{rooms.ErrRoomNotFound, http.StatusNotFound},
		{rooms.ErrUserNotFound, http.StatusNotFound},
		{sessions.ErrSessionNotFound, http.StatusNotFound},
		{rooms.ErrRoomFull, http.StatusConflict},
		{rooms.ErrRoomEnded, http.StatusConflict},
		{rooms.ErrRoomClosed, http.StatusConflict},
		{rooms.ErrForbidden, http.StatusForbidden},
		{rooms.ErrNotMember, http.StatusForbidden},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(rec)
		h.writeError(ctx, c.err)
		assert.Equalf(t, c.code, rec.Code, "error %v", c.err)
	}

	// Internal failures never leak detail to the client.
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	h.writeError(ctx, errors.New("secret detail"))
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestWriteErrorWrappedSentinel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	h.writeError(ctx, errors.Join(errors.New("context"), rooms.ErrRoomFull))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
