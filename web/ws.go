package web

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

func getUpgrader() websocket.Upgrader {
	switch os.Getenv("PROD_ENV") {
	case "DEV":
		return websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}
	default:
		return websocket.Upgrader{}
	}
}

var upgrader = getUpgrader()

type Data struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type SlotTick struct {
	Time time.Time `json:"time"`
	Slot uint64    `json:"slot"`
}

const (
	TYPE_SLOT   string = "slot"
	TYPE_RECORD string = "record"
)

const RECORD_BUFFER_SIZE = 100

func writeConn(conn *websocket.Conn, typeName string, data interface{}) error {
	return conn.WriteJSON(&Data{
		Type: typeName,
		Data: data,
	})
}

// loopRead drains client frames so close messages get handled.
func loopRead(conn *websocket.Conn, errorC chan<- error) {
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			errorC <- err
			return
		}
	}
}

// ws_server_http streams send records and the current slot to one client.
func (s Server) ws_server_http(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	clientCtx := r.Context()
	doneC := s.ctx.Done()
	clientDoneC := clientCtx.Done()
	readErrorC := make(chan error, 1)
	go loopRead(conn, readErrorC)

	recordSub, err := s.agent.OnRecord(clientCtx, RECORD_BUFFER_SIZE)
	if err != nil {
		log.Debug(err)
		return
	}
	defer recordSub.Unsubscribe()

	state := s.agent.Shared()
	ticker := time.NewTicker(s.slotInterval)
	defer ticker.Stop()
	lastSlot := uint64(0)

out:
	for {
		select {
		case <-doneC:
			err = errors.New("server done")
			break out
		case <-clientDoneC:
			break out
		case err = <-readErrorC:
			break out
		case err = <-recordSub.ErrorC:
			break out
		case x := <-recordSub.StreamC:
			err = writeConn(conn, TYPE_RECORD, &x)
			if err != nil {
				break out
			}
		case <-ticker.C:
			slot := state.Slot()
			if slot <= lastSlot {
				continue
			}
			lastSlot = slot
			err = writeConn(conn, TYPE_SLOT, &SlotTick{
				Time: time.Now(),
				Slot: slot,
			})
			if err != nil {
				break out
			}
		}
	}
	if err != nil {
		log.Debug(err)
	}
}
