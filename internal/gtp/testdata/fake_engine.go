package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	var name string
	var ignoreQuit bool
	var ignoreTerm bool
	var quitDelay time.Duration
	// Accept a subset of the flags real engines are launched with.
	flag.StringVar(&name, "name", "fake", "engine name")
	flag.BoolVar(&ignoreQuit, "ignore-quit", false, "answer quit but keep running")
	flag.BoolVar(&ignoreTerm, "ignore-term", false, "ignore SIGTERM")
	flag.DurationVar(&quitDelay, "quit-delay", 0, "delay before exiting on quit")
	flag.Bool("gtp", false, "")
	flag.Bool("noponder", false, "")
	flag.Int("playouts", 0, "")
	flag.String("w", "", "")
	flag.Parse()

	if ignoreTerm {
		signal.Ignore(syscall.SIGTERM)
	}

	fmt.Println("fake engine ready")
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		id := ""
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.Trim(fields[0], "0123456789") == "" {
			id = fields[0]
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "name":
			fmt.Printf("=%s %s\n\n", id, name)
		case "protocol_version":
			fmt.Printf("=%s 2\n\n", id)
		case "genmove":
			fmt.Printf("=%s D4\n\n", id)
		case "args":
			fmt.Printf("=%s %s\n\n", id, strings.Join(os.Args[1:], " "))
		case "list_commands":
			fmt.Printf("=%s name\nprotocol_version\ngenmove\nquit\n\n", id)
		case "sleep":
			time.Sleep(500 * time.Millisecond)
			fmt.Printf("=%s\n\n", id)
		case "quit":
			fmt.Printf("=%s\n\n", id)
			if ignoreQuit {
				continue
			}
			time.Sleep(quitDelay)
			os.Exit(0)
		default:
			fmt.Printf("?%s unknown command\n\n", id)
		}
	}
	if ignoreQuit {
		time.Sleep(time.Hour)
	}
}
