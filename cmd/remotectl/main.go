// cmd/remotectl is a standalone bench-debugging client: it opens its own
// Transport (never one shared with a running Supervisor) and issues a
// single ad-hoc SCPI command using the channel-qualified calling
// convention (MEAS:VOLT? CH1, OUTP CH1,ON).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"battery-emulator/internal/remote"
	"battery-emulator/internal/transport"
)

func main() {
	addr := flag.String("addr", "", "instrument address (host:port)")
	flag.Parse()

	args := flag.Args()
	if *addr == "" || len(args) == 0 {
		usage()
		os.Exit(2)
	}

	tr, err := transport.Dial(*addr, 5*time.Second, transport.DefaultReadTimeout)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer tr.Close()

	ctl := remote.New(tr)

	if err := dispatch(ctl, args); err != nil {
		log.Fatal(err)
	}
}

func dispatch(ctl *remote.Controller, args []string) error {
	switch args[0] {
	case "idn":
		reply, err := ctl.Identify()
		if err != nil {
			return err
		}
		fmt.Println(reply)

	case "get":
		channel, err := parseChannel(args)
		if err != nil {
			return err
		}
		v, err := ctl.MeasureVoltage(channel)
		if err != nil {
			return err
		}
		i, err := ctl.MeasureCurrent(channel)
		if err != nil {
			return err
		}
		fmt.Printf("CH%d: %.3fV %.3fA\n", channel, v, i)

	case "volt":
		channel, value, err := parseChannelAndFloat(args)
		if err != nil {
			return err
		}
		return ctl.SetVoltage(channel, value)

	case "curr":
		channel, value, err := parseChannelAndFloat(args)
		if err != nil {
			return err
		}
		return ctl.SetCurrent(channel, value)

	case "outp":
		channel, onOff, err := parseChannelAndOnOff(args)
		if err != nil {
			return err
		}
		return ctl.SetOutput(channel, onOff)

	default:
		usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
	return nil
}

func parseChannel(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a channel argument", args[0])
	}
	return strconv.Atoi(args[1])
}

func parseChannelAndFloat(args []string) (int, float64, error) {
	if len(args) < 3 {
		return 0, 0, fmt.Errorf("%s requires <channel> <value>", args[0])
	}
	channel, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, err
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return 0, 0, err
	}
	return channel, value, nil
}

func parseChannelAndOnOff(args []string) (int, bool, error) {
	if len(args) < 3 {
		return 0, false, fmt.Errorf("%s requires <channel> on|off", args[0])
	}
	channel, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, false, err
	}
	switch args[2] {
	case "on":
		return channel, true, nil
	case "off":
		return channel, false, nil
	default:
		return 0, false, fmt.Errorf("expected on|off, got %q", args[2])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: remotectl -addr host:port <subcommand> [args]

subcommands:
  idn                      query *IDN?
  get <channel>             measure voltage and current
  volt <channel> <volts>    set voltage
  curr <channel> <amps>     set current limit
  outp <channel> on|off     set output state`)
}
