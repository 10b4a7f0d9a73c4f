package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hongjun500/simlink/internal/protocol"
)

var (
	peekAddr    string
	peekFraming string
	peekCodec   string
	peekFields  []string
	peekCount   int
)

var peekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Connect as a controller and print incoming messages",
	Long:  "peek opens a controller connection and prints every message the simulation sends. Image payloads are summarised.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := dial(cmd.Context(), peekAddr, peekFraming, peekCodec)
		if err != nil {
			return err
		}
		defer cli.Close()

		if err := cli.Send(protocol.NewMessage(protocol.MsgGetProtocolVersion)); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for n := 0; peekCount <= 0 || n < peekCount; n++ {
			m, err := cli.Recv()
			if err != nil {
				return err
			}
			line, err := summarize(m, peekFields)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	f := peekCmd.Flags()
	f.StringVar(&peekAddr, "addr", "localhost:9091", "server address, ws://host:port/ws for WebSocket")
	f.StringVar(&peekFraming, "framing", "line", "TCP framing: line|length")
	f.StringVar(&peekCodec, "codec", "json", "codec: json|protobuf")
	f.StringSliceVar(&peekFields, "fields", nil, "only print these fields (msg_type is always printed)")
	f.IntVar(&peekCount, "count", 0, "stop after n messages (0 = forever)")
}

// summarize 以 JSON 一行输出，图像字段只保留长度
func summarize(m *protocol.Message, only []string) (string, error) {
	fields := m.Fields()
	if len(only) > 0 {
		keep := map[string]any{protocol.FieldMsgType: fields[protocol.FieldMsgType]}
		for _, k := range only {
			if v, ok := fields[k]; ok {
				keep[k] = v
			}
		}
		fields = keep
	}
	for _, k := range []string{"image", "imageb"} {
		if s, ok := fields[k].(string); ok {
			fields[k] = fmt.Sprintf("<%d bytes base64>", len(s))
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
