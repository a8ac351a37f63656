// Command rtpingestd is a demonstration binary for the reception core: it
// opens a UDP socket, wires a generic RTP/RTCP discriminator through an
// SRTCP decrypt auxiliary, and prints a summary of every delivered frame.
// It is not part of the core's tested contract.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/fernbridge/rtpcore"
	"github.com/fernbridge/rtpcore/internal/handler"
	"github.com/fernbridge/rtpcore/internal/logging"
	"github.com/fernbridge/rtpcore/internal/rtpheader"
)

const pullTimeout = 200 * time.Millisecond

var log = logging.DefaultLogger.WithTag("rtpingestd")

func main() {
	flag.Parse()
	if flagHelp {
		fmt.Println(helpString)
		os.Exit(0)
	}

	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("rtpingestd")
	fmt.Printf(" listening on %s (buffer %d MiB, push=%v)\n", flagListen, flagBufferSizeMiB, flagPush)

	conn, err := net.ListenPacket("udp", flagListen)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	reg := handler.New()
	installDiscriminator(reg, nil) // no SRTCP keys configured for this demo listener

	cfg := ingest.Config{
		Socket:          conn,
		Registry:        reg,
		BufferSizeBytes: flagBufferSizeMiB * 1024 * 1024,
	}
	if flagPush {
		cfg.PushHook = func(ctx interface{}, frame *handler.Frame) {
			printFrame(frame)
		}
	}

	core, err := ingest.New(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	core.Start()
	defer core.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if flagPush {
		<-sigCh
		return
	}

	for {
		select {
		case <-sigCh:
			return
		default:
		}
		if frame := core.Endpoint().PullWithTimeout(pullTimeout); frame != nil {
			printFrame(frame)
		}
	}
}

func printFrame(f *handler.Frame) {
	if f.Flags&flagIsRTCP != 0 {
		fmt.Printf("RTCP ssrc=%08x bytes=%d\n", f.SSRC, len(f.Payload))
		return
	}

	h, err := rtpheader.Parse(f.Payload)
	if err != nil {
		fmt.Printf("RTP  ssrc=%08x bytes=%d (unparsed: %v)\n", f.SSRC, len(f.Payload), err)
		return
	}
	fmt.Printf("RTP  ssrc=%08x pt=%d seq=%d ts=%d bytes=%d\n",
		f.SSRC, h.PayloadType, h.Sequence, h.Timestamp, len(f.Payload))
}
