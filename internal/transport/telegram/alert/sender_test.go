package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitText(long, 10))

	parts := splitText(strings.Repeat("x", 25), 10)
	assert.Len(t, parts, 3)
}

func TestNewRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	_, err := New(Config{ChatID: 1}, logx.Nop())
	assert.Error(t, err)
	_, err = New(Config{Token: "t"}, logx.Nop())
	assert.Error(t, err)
}

func TestSendTextPostsToBotAPI(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 42, URL: srv.URL}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SendText(context.Background(), "[WARN] dispatch cycle skipped"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", paths[0])
}
