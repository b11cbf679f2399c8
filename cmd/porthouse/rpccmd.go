package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/config"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
)

// callExchange connects to the broker named by globals.yaml, issues one RPC
// call of verb against exchange, and prints the JSON reply to stdout. Each
// invocation opens and tears down its own connection: this is a one-shot
// command-line tool, not a long-lived module, so there is no connection to
// reuse between calls.
func callExchange(exchange, verb string, params map[string]any, timeout time.Duration) error {
	globals, err := config.LoadGlobals()
	if err != nil {
		return fmt.Errorf("%s: %w", exchange, err)
	}

	br := broker.New(globals.AMQPURL)
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()
	if err := br.Connect(ctx); err != nil {
		return fmt.Errorf("%s: connecting: %w", exchange, err)
	}
	defer br.Close()

	transport := rpc.NewTransport(br)
	reply, err := transport.Call(ctx, exchange, "rpc."+verb, params, timeout)
	if err != nil {
		return fmt.Errorf("%s.rpc.%s: %w", exchange, verb, err)
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return fmt.Errorf("%s.rpc.%s: encoding reply: %w", exchange, verb, err)
	}
	fmt.Println(string(out))
	return nil
}

// parseParams turns a repeated --param key=value flag into the query body a
// handler receives. Values that parse as JSON (numbers, booleans, objects,
// arrays, quoted strings) are decoded as such; anything else is kept as a
// plain string, so `--param norad_id=25544` and `--param name=ISS` both do
// the intuitive thing without a separate --param-type flag.
func parseParams(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := splitKV(kv)
		if !ok {
			return nil, fmt.Errorf("--param %q: expected key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		params[name] = decoded
	}
	return params, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func rpcTimeout(cmd *cobra.Command) time.Duration {
	secs, _ := cmd.Flags().GetFloat64("timeout")
	if secs <= 0 {
		return rpc.DefaultTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

func addRPCFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("param", nil, "request parameter as key=value (repeatable)")
	cmd.Flags().Float64("timeout", 0, "reply timeout in seconds (default: rpc.DefaultTimeout)")
}

func newExchangeCommand(use, exchange, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <verb>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringSlice("param")
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			return callExchange(exchange, args[0], params, rpcTimeout(cmd))
		},
	}
	addRPCFlags(cmd)
	return cmd
}

var schedulerCmd = newExchangeCommand("scheduler", "scheduler", "Call an RPC verb on the scheduler module")
var packetsCmd = newExchangeCommand("packets", "packets", "Call an RPC verb on the packet router module")
var housekeepingCmd = newExchangeCommand("housekeeping", "housekeeping", "Call an RPC verb on the housekeeping module")

var cmdlCmd = &cobra.Command{
	Use:   "cmdl <exchange> <verb>",
	Short: "Call an arbitrary RPC verb on any exchange",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringSlice("param")
		params, err := parseParams(raw)
		if err != nil {
			return err
		}
		return callExchange(args[0], args[1], params, rpcTimeout(cmd))
	},
}

func init() {
	addRPCFlags(cmdlCmd)
}
