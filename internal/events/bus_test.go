package events_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Bus", func() {
	var (
		bus    *events.Bus
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		bus = events.NewBus(config.EventsConfig{SubscriberBuffer: 4}, logger, nil)
		bus.Start()
		DeferCleanup(func() {
			Expect(bus.Stop(context.Background())).To(Succeed())
		})
	})

	It("delivers events only to subscribers of the topic", func() {
		created, err := bus.Subscribe(events.TopicAppCreated)
		Expect(err).NotTo(HaveOccurred())
		rebuilt, err := bus.Subscribe(events.TopicAppRebuilt)
		Expect(err).NotTo(HaveOccurred())

		bus.Publish(events.TopicAppCreated, events.LogPayload{ReferenceID: "app-1", Message: "hello", Type: events.TypeStdout})

		var ev events.Event
		Eventually(created.C).Should(Receive(&ev))
		Expect(ev.Topic).To(Equal(events.TopicAppCreated))
		Expect(ev.Payload).To(Equal(events.LogPayload{ReferenceID: "app-1", Message: "hello", Type: events.TypeStdout}))
		Consistently(rebuilt.C, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("preserves publish order for a subscriber", func() {
		sub, err := bus.Subscribe(events.TopicAppCreated)
		Expect(err).NotTo(HaveOccurred())

		for _, msg := range []string{"a", "b", "c"} {
			bus.Publish(events.TopicAppCreated, msg)
		}

		var got []string
		for range 3 {
			var ev events.Event
			Eventually(sub.C).Should(Receive(&ev))
			got = append(got, ev.Payload.(string))
		}
		Expect(got).To(Equal([]string{"a", "b", "c"}))
	})

	It("drops events for slow subscribers without blocking publishers", func() {
		slow, err := bus.Subscribe(events.TopicAppCreated)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := range 50 {
				bus.Publish(events.TopicAppCreated, i)
			}
		}()
		Eventually(done).Should(BeClosed())

		// Give the dispatcher time to drain the broadcast queue.
		time.Sleep(100 * time.Millisecond)
		Expect(len(slow.C)).To(Equal(4))
	})

	It("closes subscription channels on unsubscribe", func() {
		sub, err := bus.Subscribe(events.TopicDatabaseLinked)
		Expect(err).NotTo(HaveOccurred())
		sub.Close()
		Eventually(sub.C).Should(BeClosed())
	})

	It("closes subscriptions and rejects new ones once stopped", func() {
		sub, err := bus.Subscribe(events.TopicAppCreated)
		Expect(err).NotTo(HaveOccurred())

		Expect(bus.Stop(context.Background())).To(Succeed())
		Eventually(sub.C).Should(BeClosed())

		_, err = bus.Subscribe(events.TopicAppCreated)
		Expect(err).To(MatchError(events.ErrBusNotRunning))
		bus.Publish(events.TopicAppCreated, "ignored")
	})
})

var _ = Describe("WebsocketHandler", func() {
	var (
		bus    *events.Bus
		server *httptest.Server
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		bus = events.NewBus(config.EventsConfig{}, logger, nil)
		bus.Start()

		router := mux.NewRouter()
		router.Handle("/ws/{topic}", events.NewWebsocketHandler(bus, logger))
		server = httptest.NewServer(router)

		DeferCleanup(func() {
			server.Close()
			Expect(bus.Stop(context.Background())).To(Succeed())
		})
	})

	dial := func(path string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + path
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)
		return conn
	}

	It("streams events of the requested application", func() {
		conn := dial("/ws/APP_CREATED?reference_id=app-1")

		// The subscription is registered before the upgrade completes.
		bus.Publish(events.TopicAppCreated, events.LogPayload{ReferenceID: "app-2", Message: "other", Type: events.TypeStdout})
		bus.Publish(events.TopicAppCreated, events.LogPayload{ReferenceID: "app-1", Message: "mine", Type: events.TypeStdout})

		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, data, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())

		var ev struct {
			Topic   string            `json:"topic"`
			Payload events.LogPayload `json:"payload"`
		}
		Expect(json.Unmarshal(data, &ev)).To(Succeed())
		Expect(ev.Topic).To(Equal("APP_CREATED"))
		Expect(ev.Payload.Message).To(Equal("mine"))
	})

	It("rejects unknown topics", func() {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/NOPE"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).To(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
	})
})
