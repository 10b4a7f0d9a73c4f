package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongjun500/simlink/internal/protocol"
)

var (
	driveAddr     string
	driveFraming  string
	driveCodec    string
	driveSteering float64
	driveThrottle float64
	driveBrake    float64
	driveDuration time.Duration
	driveRate     float64
	driveReset    bool
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Send a constant control input for a while",
	Long:  "drive connects as a controller, optionally resets the car, then sends the same control values at a fixed rate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if driveRate <= 0 {
			return fmt.Errorf("rate must be positive, got %v", driveRate)
		}
		cli, err := dial(cmd.Context(), driveAddr, driveFraming, driveCodec)
		if err != nil {
			return err
		}
		defer cli.Close()

		out := cmd.OutOrStdout()
		// 等待 car_loaded
		for {
			m, err := cli.Recv()
			if err != nil {
				return err
			}
			if m.Type() == protocol.MsgCarLoaded {
				fmt.Fprintln(out, "car_loaded")
				break
			}
		}
		if driveReset {
			if err := cli.Send(protocol.NewMessage(protocol.MsgResetCar)); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(time.Duration(float64(time.Second) / driveRate))
		defer ticker.Stop()
		deadline := time.After(driveDuration)
		sent := 0
		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-deadline:
				// 松油门踩刹车
				_ = cli.Send(control(0, 0, 1))
				fmt.Fprintf(out, "sent %d control messages\n", sent)
				return nil
			case <-ticker.C:
				if err := cli.Send(control(driveSteering, driveThrottle, driveBrake)); err != nil {
					return err
				}
				sent++
			}
		}
	},
}

func init() {
	f := driveCmd.Flags()
	f.StringVar(&driveAddr, "addr", "localhost:9091", "server address, ws://host:port/ws for WebSocket")
	f.StringVar(&driveFraming, "framing", "line", "TCP framing: line|length")
	f.StringVar(&driveCodec, "codec", "json", "codec: json|protobuf")
	f.Float64Var(&driveSteering, "steering", 0, "steering in [-1, 1]")
	f.Float64Var(&driveThrottle, "throttle", 0.3, "throttle in [-1, 1]")
	f.Float64Var(&driveBrake, "brake", 0, "brake in [0, 1]")
	f.DurationVar(&driveDuration, "duration", 5*time.Second, "how long to drive")
	f.Float64Var(&driveRate, "rate", 20, "control messages per second")
	f.BoolVar(&driveReset, "reset", false, "send reset_car before driving")
}

// control 数值按字符串发送，与线上格式一致
func control(steering, throttle, brake float64) *protocol.Message {
	return protocol.NewMessage(protocol.MsgControl).
		Set("steering", strconv.FormatFloat(steering, 'f', -1, 64)).
		Set("throttle", strconv.FormatFloat(throttle, 'f', -1, 64)).
		Set("brake", strconv.FormatFloat(brake, 'f', -1, 64))
}
