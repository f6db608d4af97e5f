package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"llmnexus/internal/metrics"
)

const (
	feedWSWriteWait = 10 * time.Second
	feedWSPongWait  = 60 * time.Second
	feedWSPingEvery = (feedWSPongWait * 9) / 10
)

var feedWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type FeedSource interface {
	Subscribe(ctx context.Context) <-chan metrics.Record
}

type feedWSOutbound struct {
	Type   string          `json:"type"`
	Record *metrics.Record `json:"record,omitempty"`
}

// MetricsFeedHandler streams metric records to websocket clients as they
// are appended. Optional identity, model and run_id query parameters
// narrow the feed.
type MetricsFeedHandler struct {
	src FeedSource
}

func NewMetricsFeedHandler(src FeedSource) *MetricsFeedHandler {
	return &MetricsFeedHandler{src: src}
}

func (h *MetricsFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := metrics.Filter{
		Identity: strings.TrimSpace(q.Get("identity")),
		ModelID:  strings.TrimSpace(q.Get("model")),
		RunID:    strings.TrimSpace(q.Get("run_id")),
	}

	conn, err := feedWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(feedWSPongWait)); err != nil {
		log.WithField("event", "metrics_feed").WithError(err).Warn("set read deadline failed")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedWSPongWait))
	})

	records := h.src.Subscribe(ctx)

	// reads only drive pong handling and notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedWSPingEvery)
	defer ticker.Stop()
	if err := writeFeed(conn, feedWSOutbound{Type: "subscribed"}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if !filter.Match(rec) {
				continue
			}
			if err := writeFeed(conn, feedWSOutbound{Type: "record", Record: &rec}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(feedWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFeed(conn *websocket.Conn, out feedWSOutbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(feedWSWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(out)
}
