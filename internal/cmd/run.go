package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alia5/udcore/device/vendorecho"
	"github.com/Alia5/udcore/internal/log"
	"github.com/Alia5/udcore/udc"
	"github.com/Alia5/udcore/virtualhost"
)

// Run hosts a vendor-echo device on the in-process virtual bus and drives it
// from the host side.
type Run struct {
	QueueDepth       int           `help:"Engine event queue depth" default:"16" env:"UDCORE_QUEUE_DEPTH"`
	ControlMaxPacket uint16        `help:"EP0 max packet size" default:"64" env:"UDCORE_CONTROL_MPS"`
	Message          string        `help:"Payload exchanged over the echo device" default:"hello from udcore"`
	Loops            int           `help:"Bulk loopback round trips, 0 runs until interrupted" default:"3"`
	Interval         time.Duration `help:"Delay between round trips" default:"250ms" env:"UDCORE_INTERVAL"`
	ExchangeTimeout  time.Duration `help:"Per-exchange bus timeout" default:"5s" env:"UDCORE_EXCHANGE_TIMEOUT"`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.StartBus(ctx, logger, rawLogger)
}

func (r *Run) StartBus(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	logger.Info("Starting udcore virtual bus", "queue_depth", r.QueueDepth, "control_mps", r.ControlMaxPacket)

	host := virtualhost.New(logger)
	dev := vendorecho.New(logger)
	engine := udc.New(host, dev, dev, udc.Config{
		QueueDepth:       r.QueueDepth,
		ControlMaxPacket: r.ControlMaxPacket,
		Logger:           logger,
		Trace:            rawLogger,
	})

	if err := engine.Attach(ctx); err != nil {
		return fmt.Errorf("attach device: %w", err)
	}
	defer func() {
		if err := engine.Detach(); err != nil {
			logger.Error("detach failed", "error", err)
		}
	}()

	if err := dev.Bind(engine); err != nil {
		return fmt.Errorf("bind echo device: %w", err)
	}
	if err := engine.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	host.SetVBus(true)
	host.Reset()

	if err := r.controlExchange(host, dev, logger); err != nil {
		return err
	}

	for i := 0; r.Loops == 0 || i < r.Loops; i++ {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-time.After(r.Interval):
		}

		msg := []byte(fmt.Sprintf("%s #%d", r.Message, i+1))
		if _, err := host.FeedOut(vendorecho.BulkOut, msg, r.ExchangeTimeout); err != nil {
			return fmt.Errorf("bulk out: %w", err)
		}
		reply, err := host.CollectIn(vendorecho.BulkIn, r.ExchangeTimeout)
		if err != nil {
			return fmt.Errorf("bulk in: %w", err)
		}
		if !bytes.Equal(reply, msg) {
			return fmt.Errorf("loopback mismatch: sent %q, got %q", msg, reply)
		}
		logger.Info("Loopback round trip", "round", i+1, "bytes", len(reply))
		host.FrameTick()
	}

	logger.Info("Done")
	return nil
}

// controlExchange runs a write, read-back and ping over the default control
// pipe.
func (r *Run) controlExchange(host *virtualhost.Controller, dev *vendorecho.Device, logger *slog.Logger) error {
	payload := []byte(r.Message)

	host.SendSetup(udc.SetupPacket{
		RequestType: 0x40,
		Request:     vendorecho.ReqEchoWrite,
		Length:      uint16(len(payload)),
	})
	if _, err := host.FeedOut(udc.ControlOut, payload, r.ExchangeTimeout); err != nil {
		return fmt.Errorf("control write data: %w", err)
	}
	if _, err := host.CollectIn(udc.ControlIn, r.ExchangeTimeout); err != nil {
		return fmt.Errorf("control write status: %w", err)
	}
	logger.Info("Echo store written", "bytes", len(payload))

	host.SendSetup(udc.SetupPacket{
		RequestType: 0xc0,
		Request:     vendorecho.ReqEchoRead,
		Length:      uint16(len(payload)),
	})
	back, err := host.CollectIn(udc.ControlIn, r.ExchangeTimeout)
	if err != nil {
		return fmt.Errorf("control read data: %w", err)
	}
	if _, err := host.FeedOut(udc.ControlOut, nil, r.ExchangeTimeout); err != nil {
		return fmt.Errorf("control read status: %w", err)
	}
	if !bytes.Equal(back, payload) {
		return fmt.Errorf("echo mismatch: wrote %q, read %q", payload, back)
	}
	logger.Info("Echo store read back", "bytes", len(back))

	host.SendSetup(udc.SetupPacket{RequestType: 0x40, Request: vendorecho.ReqPing})
	if _, err := host.CollectIn(udc.ControlIn, r.ExchangeTimeout); err != nil {
		return fmt.Errorf("ping status: %w", err)
	}
	logger.Info("Ping acknowledged", "count", dev.Pings())
	return nil
}
