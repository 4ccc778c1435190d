package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"focdrive/hostlink"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
)

func main() {
	flag.Parse()

	fmt.Printf("Connecting to controller on %s...\n", *device)
	cfg := hostlink.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := hostlink.OpenSerial(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	fmt.Println("Connected. Enter commands ('help' for syntax, 'quit' to exit):")

	// Controller responses arrive asynchronously with respect to the prompt;
	// drain them on their own goroutine.
	go drainResponses(port)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
			continue
		}
		if _, err := fmt.Fprintf(port, "%s\n", line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: write failed: %v\n", err)
			return
		}
	}
}

func drainResponses(port *hostlink.SerialPort) {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		// The port's read timeout surfaces as a zero-byte EOF; keep polling.
		if err != nil && err != io.EOF {
			return
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  p <m> <pos> <vel_ff> <cur_ff>   position setpoint with feed-forwards
  v <m> <vel> <cur_ff>            velocity setpoint
  c <m> <cur>                     current setpoint
  g <type> <index>                read scalar (0=float,1=int,2=bool,3=uint16)
  s <type> <index> <value>        write scalar
  m <type> <index> <slot>         bind monitoring slot
  o <limit>                       emit one line of bound monitoring slots
  quit                            exit`)
}
