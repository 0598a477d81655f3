//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"gocoupler/config"
)

// uartLink carries the byte protocol over UART0 for boards wired to a
// USB-serial bridge instead of the RP2 USB port
type uartLink struct {
	u *uartx.UART
}

func newUARTLink() *uartLink {
	return &uartLink{u: uartx.UART0}
}

func (l *uartLink) Init() error {
	return l.u.Configure(uartx.UARTConfig{
		BaudRate: config.DefaultBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
}

func (l *uartLink) Pump(deliver func([]byte)) {
	buf := make([]byte, 64)
	ctx := context.Background()
	for {
		n, err := l.u.RecvSomeContext(ctx, buf)
		if err != nil {
			linkErrors++
			continue
		}
		if n > 0 {
			deliver(buf[:n])
		}
	}
}

func (l *uartLink) Write(p []byte) (int, error) {
	return l.u.Write(p)
}
