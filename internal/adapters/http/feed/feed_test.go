package feed_test

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/verdict/internal/adapters/http/api"
	"github.com/okian/verdict/internal/adapters/http/feed"
	"github.com/okian/verdict/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	got    [][]byte
	fail   bool
	closed bool
}

func (r *recorder) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	r.got = append(r.got, p)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func TestHub(t *testing.T) {
	Convey("Given a hub with two subscribers", t, func() {
		hub := feed.NewHub()
		a, b := &recorder{}, &recorder{}
		hub.Register(a)
		hub.Register(b)
		So(hub.Len(), ShouldEqual, 2)

		Convey("When a message is published", func() {
			So(hub.Publish(api.AnnounceResultsReleased, map[string]int{"teams": 3}), ShouldBeNil)

			Convey("Then both receive the envelope", func() {
				So(len(a.got), ShouldEqual, 1)
				So(len(b.got), ShouldEqual, 1)
				var msg struct {
					Type string         `json:"type"`
					Data map[string]int `json:"data"`
				}
				So(json.Unmarshal(a.got[0], &msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, api.AnnounceResultsReleased)
				So(msg.Data["teams"], ShouldEqual, 3)
			})
		})

		Convey("When one subscriber fails to receive", func() {
			b.fail = true
			hub.Broadcast([]byte("x"))

			Convey("Then it is closed and dropped", func() {
				So(b.closed, ShouldBeTrue)
				So(hub.Len(), ShouldEqual, 1)
				So(len(a.got), ShouldEqual, 1)
			})
		})

		Convey("When the hub is closed", func() {
			hub.Close()
			late := &recorder{}
			hub.Register(late)

			Convey("Then every subscriber is closed and new ones are refused", func() {
				So(a.closed, ShouldBeTrue)
				So(b.closed, ShouldBeTrue)
				So(late.closed, ShouldBeTrue)
				So(hub.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestHandler(t *testing.T) {
	Convey("Given a feed endpoint", t, func() {
		hub := feed.NewHub()
		srv := httptest.NewServer(feed.NewHandler(hub, logger.Nop(), nil))
		defer srv.Close()
		defer hub.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("When a message is published after the client connects", func() {
			deadline := time.Now().Add(2 * time.Second)
			for hub.Len() == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(hub.Publish(api.AnnounceEvaluationSubmitted, map[string]string{"team_id": "T1"}), ShouldBeNil)

			Convey("Then the client reads it", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, payload, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				So(string(payload), ShouldContainSubstring, api.AnnounceEvaluationSubmitted)
				So(string(payload), ShouldContainSubstring, "T1")
			})
		})
	})
}
