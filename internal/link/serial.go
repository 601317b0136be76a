package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialConnection wraps a serial port as a Transport.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerial opens an 8N1 serial port. readTimeout bounds each Read so the
// controller loop never blocks on a silent line.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
		}
	}
	return &SerialConnection{port: port}, nil
}

// PortInfo describes one serial port found on the system.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListPorts enumerates serial ports with USB details when available.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:    p.Name,
			IsUSB:   p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return out, nil
}
