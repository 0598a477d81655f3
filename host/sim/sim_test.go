package sim

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"gocoupler/config"
	"gocoupler/host/serial"
	"gocoupler/protocol"
)

type harness struct {
	dev    *Device
	port   *serial.PipePort
	lines  chan string
	cancel context.CancelFunc
}

func startSim(t *testing.T, hz float64) *harness {
	t.Helper()
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())

	dev, err := New(Options{Firmware: config.DefaultFirmwareConfig(), SignalHz: hz, Logger: logger})
	require.NoError(t, err)

	host, devPort := serial.Pair()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		dev.Run(ctx, devPort)
	}()

	h := &harness{dev: dev, port: host, lines: make(chan string, 256), cancel: cancel}
	go func() {
		r := bufio.NewReader(host)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(h.lines)
				return
			}
			h.lines <- line
		}
	}()

	t.Cleanup(func() {
		cancel()
		host.Close()
		devPort.Close()
		<-finished
	})
	return h
}

func (h *harness) send(t *testing.T, b []byte) {
	t.Helper()
	_, err := h.port.Write(b)
	require.NoError(t, err)
}

func (h *harness) next(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-h.lines:
		require.True(t, ok, "port closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device output")
		return ""
	}
}

// untilAck collects output lines up to and including the matrix ACK
func (h *harness) untilAck(t *testing.T) []string {
	t.Helper()
	var lines []string
	for {
		line := h.next(t)
		lines = append(lines, line)
		if line == protocol.MatrixAck {
			return lines
		}
	}
}

func TestMatrixReachesExpanders(t *testing.T) {
	h := startSim(t, 0)

	h.send(t, []byte("<1,0;0,1>"))
	lines := h.untilAck(t)
	require.Equal(t, []string{"\n", "1 0\n", "0 1\n", "\n", protocol.MatrixAck}, lines)

	out := h.dev.Outputs()
	require.Equal(t, byte(0x01), out[0])
	require.Equal(t, byte(0x02), out[1])
	for i := 2; i < len(out); i++ {
		require.Zero(t, out[i], "expander %d", i)
	}
	require.Equal(t, uint32(1), h.dev.Stats().MatricesApplied)
}

func TestExpanderFaultStillAcks(t *testing.T) {
	h := startSim(t, 0)
	h.dev.FailExpander(1, true)

	h.send(t, []byte("<1,1;1,1>"))
	h.untilAck(t)

	require.Equal(t, byte(0x03), h.dev.Outputs()[0])
	require.NotZero(t, h.dev.Stats().ExpanderFaults)
}

func TestFrequencyMode(t *testing.T) {
	h := startSim(t, 50)

	h.send(t, []byte{protocol.StartFrequency})
	require.Equal(t, protocol.AckStartFrequency, h.next(t))

	for i := 0; i < 3; i++ {
		line := h.next(t)
		require.True(t, strings.HasSuffix(line, protocol.ReportSuffix), line)
		hz, err := protocol.ParseFrequencyReport(line)
		require.NoError(t, err)
		require.Equal(t, 50.0, hz)
	}

	h.send(t, []byte{protocol.StopFrequency})
	for {
		line := h.next(t)
		if line == protocol.AckStopFrequency {
			break
		}
		require.True(t, protocol.IsFrequencyReport(line), line)
	}
}
