// Package status broadcasts progress of long running operations (extraction,
// validation, defragmentation) to websocket clients.
package status

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Kind int

const (
	INFO Kind = iota
	ERROR
	PROGRESS
)

type Event struct {
	Message  string
	Time     time.Time
	Type     Kind
	Progress float32
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	ticker := time.NewTicker(time.Second * 30)
	defer func() {
		ticker.Stop()
		unregisterClient(c)
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(40 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debugf("[status] ws write msg error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(40 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debugf("[status] ws write ping error: %v", err)
				return
			}
		}
	}
}

// readPump drains control frames so close and pong are processed.
func (c *client) readPump() {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// NewClient registers conn and sends it the last broadcast event.
func NewClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, 32)}
	globalLock.Lock()
	broadcastList[c] = true
	if lastMessage != nil {
		c.send <- lastMessage
	}
	globalLock.Unlock()
	go c.writePump()
	go c.readPump()
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and subscribes the connection to the feed.
func ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[status] ws upgrade error: %v", err)
		return
	}
	NewClient(conn)
}

var statusBroadcast chan *Event
var broadcastList map[*client]bool
var globalLock sync.Mutex
var lastMessage []byte = nil

func unregisterClient(c *client) {
	globalLock.Lock()
	defer globalLock.Unlock()
	delete(broadcastList, c)
}

func init() {
	statusBroadcast = make(chan *Event, 16)
	broadcastList = make(map[*client]bool)
	go func() {
		for s := range statusBroadcast {
			data, err := json.Marshal(s)
			if err != nil {
				log.Errorf("[status] marshal: %v", err)
				continue
			}
			globalLock.Lock()
			lastMessage = data
			for c := range broadcastList {
				select {
				case c.send <- data:
				default:
					// slow client, drop the event
				}
			}
			globalLock.Unlock()
		}
	}()
}

func Status(msg string, kind Kind, progress float32) {
	if math.IsNaN(float64(progress)) || math.IsInf(float64(progress), 0) {
		progress = 0
	}
	statusBroadcast <- &Event{
		Message:  msg,
		Time:     time.Now(),
		Type:     kind,
		Progress: progress}
}

func Info(format string, a ...interface{}) {
	Status(fmt.Sprintf(format, a...), INFO, 0.0)
}

func Error(format string, a ...interface{}) {
	Status(fmt.Sprintf(format, a...), ERROR, 0.0)
}

func Progress(progress float32, format string, a ...interface{}) {
	Status(fmt.Sprintf(format, a...), PROGRESS, progress)
}

// Counter reports done out of total as a PROGRESS event.
func Counter(done, total int, format string, a ...interface{}) {
	var progress float32
	if total > 0 {
		progress = float32(done) / float32(total)
	}
	Progress(progress, format, a...)
}
