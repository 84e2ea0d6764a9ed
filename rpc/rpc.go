package rpc

import (
	"log/slog"
	"net"
	"net/http"
	"net/rpc"

	"github.com/pkg/errors"
)

// DefaultAddress is where the follower listens unless told otherwise.
const DefaultAddress = "127.0.0.1:31337"

// Position is the playback position broadcast to followers.
type Position struct {
	VirtualPosition int
	PhysicalMeasure int
	Seconds         float64
}

type SyncServer struct {
	channel chan Position
}

// Sync drops the position if the previous one has not been consumed yet;
// followers only care about the latest one.
func (s *SyncServer) Sync(pos Position, reply *int) error {
	select {
	case s.channel <- pos:
	default:
	}
	return nil
}

// Receiver listens for positions on address. The returned channel is closed
// once the listener is closed.
func Receiver(address string) (<-chan Position, net.Listener, error) {
	c := make(chan Position, 1)
	server := rpc.NewServer()
	if err := server.Register(&SyncServer{channel: c}); err != nil {
		return nil, nil, errors.Wrap(err, "rpc register failed")
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, server)
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "net.Listen failed on %v", address)
	}
	go func() {
		defer close(c)
		http.Serve(l, mux)
	}()
	return c, l, nil
}

// Sender dials the follower at address. Positions sent to the returned channel
// are forwarded until it is closed or a call fails.
func Sender(address string, logger *slog.Logger) (chan<- Position, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := make(chan Position, 256)
	client, err := rpc.DialHTTP("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "rpc.DialHTTP failed on %v", address)
	}
	go func() {
		defer client.Close()
		for msg := range c {
			var reply int
			if err := client.Call("SyncServer.Sync", msg, &reply); err != nil {
				logger.Error("SyncServer.Sync failed, no longer sending positions", "err", err)
				for range c {
				}
				return
			}
		}
	}()
	return c, nil
}
