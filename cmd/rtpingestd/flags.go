package main

import (
	flag "github.com/spf13/pflag"
)

var (
	flagListen        string
	flagBufferSizeMiB int
	flagPush          bool
	flagHelp          bool
)

func init() {
	flag.StringVarP(&flagListen, "listen", "l", ":5004", "UDP address to receive RTP/RTCP on")
	flag.IntVarP(&flagBufferSizeMiB, "buffer-size-mib", "b", 4, "Initial ring buffer size, in MiB")
	flag.BoolVarP(&flagPush, "push", "p", false, "Use push-mode delivery instead of pull")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const helpString = `rtpingestd: demonstration RTP/SRTCP reception core

Usage: rtpingestd [OPTION]...

  -l, --listen=ADDR           UDP address to receive on (default: :5004)
  -b, --buffer-size-mib=NUM   Initial ring buffer size, in MiB (default: 4)
  -p, --push                  Use push-mode delivery instead of pull
  -h, --help                  Print this help message and exit`
