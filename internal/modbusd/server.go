// Package modbusd publishes the latest measurement over Modbus/TCP for
// industrial consumers. It is a read-only view of the shared computing
// state; the single writable holding register tunes the suggested client
// polling interval.
package modbusd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// Input register layout.
const (
	regPeakFrequency = 0 // Hz × 10
	regPeakAmplitude = 1 // normalized × 1000
	regConcentration = 2 // ppm × 10
	regStatus        = 3 // 1 when recent data is available
	regTimestampHi   = 4 // unix seconds, high word
	regTimestampLo   = 5 // unix seconds, low word

	inputRegisterCount = 6
)

// Holding register layout.
const (
	regPollingInterval = 0 // suggested client polling interval, ms

	holdingRegisterCount = 1
)

const defaultPollingIntervalMS = 1000

// Server wraps a Modbus/TCP server over the computing state.
type Server struct {
	server *modbus.ModbusServer
	state  *computing.SharedState

	pollingIntervalMS atomic.Uint32
	logger            *slog.Logger
}

// NewServer builds the server from configuration.
func NewServer(cfg *conf.ModbusSettings, state *computing.SharedState) (*Server, error) {
	logger := logging.ForService("modbus")
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		state:  state,
		logger: logger.With("component", "server"),
	}
	s.pollingIntervalMS.Store(defaultPollingIntervalMS)

	url := fmt.Sprintf("tcp://%s:%d", cfg.Address, cfg.Port)
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    30 * time.Second,
		MaxClients: 5,
	}, s)
	if err != nil {
		return nil, errors.New(err).
			Component("modbus").
			Category(errors.CategoryConfiguration).
			Context("url", url).
			Build()
	}
	s.server = server
	return s, nil
}

// Run starts the listener until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return errors.New(err).
			Component("modbus").
			Category(errors.CategoryNetwork).
			Build()
	}
	s.logger.Info("modbus server started")
	<-ctx.Done()
	if err := s.server.Stop(); err != nil {
		s.logger.Warn("modbus server stop failed", "error", err)
	}
	s.logger.Info("modbus server stopped")
	return nil
}

// HandleInputRegisters serves the measurement registers.
func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if int(req.Addr)+int(req.Quantity) > inputRegisterCount {
		return nil, modbus.ErrIllegalDataAddress
	}

	snapshot := s.state.GetSnapshot()
	regs := make([]uint16, inputRegisterCount)
	if snapshot.PeakFrequency != nil {
		regs[regPeakFrequency] = scaleToRegister(*snapshot.PeakFrequency, 10)
	}
	if snapshot.PeakAmplitude != nil {
		regs[regPeakAmplitude] = scaleToRegister(*snapshot.PeakAmplitude, 1000)
	}
	if snapshot.ConcentrationPPM != nil {
		regs[regConcentration] = scaleToRegister(*snapshot.ConcentrationPPM, 10)
	}
	for _, id := range s.state.PeakFinderNodeIDs() {
		if s.state.HasRecentPeakData(id) {
			regs[regStatus] = 1
			break
		}
	}
	ts := uint32(snapshot.LastUpdate.Unix())
	regs[regTimestampHi] = uint16(ts >> 16)
	regs[regTimestampLo] = uint16(ts & 0xffff)

	return regs[req.Addr : int(req.Addr)+int(req.Quantity)], nil
}

// HandleHoldingRegisters serves and accepts the polling interval register.
func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if int(req.Addr)+int(req.Quantity) > holdingRegisterCount {
		return nil, modbus.ErrIllegalDataAddress
	}
	if req.IsWrite {
		for i, v := range req.Args {
			if int(req.Addr)+i == regPollingInterval {
				if v == 0 {
					return nil, modbus.ErrIllegalDataValue
				}
				s.pollingIntervalMS.Store(uint32(v))
				s.logger.Info("polling interval updated", "interval_ms", v)
			}
		}
	}
	return []uint16{uint16(s.pollingIntervalMS.Load())}[req.Addr : int(req.Addr)+int(req.Quantity)], nil
}

// HandleCoils rejects coil access; the register map has none.
func (s *Server) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleDiscreteInputs rejects discrete input access; the register map has
// none.
func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// scaleToRegister clamps value × scale into the uint16 range.
func scaleToRegister(value, scale float64) uint16 {
	scaled := math.Round(value * scale)
	if scaled < 0 {
		return 0
	}
	if scaled > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(scaled)
}
