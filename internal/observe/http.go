package observe

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hongjun500/simlink/pkg/logger"
)

//go:embed static
var embeddedStatic embed.FS

// Stepper 外部调度器推进同步模式的仿真时钟
type Stepper interface {
	RequestSteps(n int) error
}

// Handler 返回 /healthz、/metrics、/step 以及 / 静态页面
func Handler(stepper Stepper) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/step", func(w http.ResponseWriter, r *http.Request) {
		handleStep(w, r, stepper)
	})
	// 静态资源（用于 WS 测试页面）
	sub, _ := fs.Sub(embeddedStatic, "static")
	mux.Handle("/", http.FileServer(http.FS(sub)))
	return mux
}

// StartHTTP 启动 HTTP 服务，ctx 结束时优雅关闭
func StartHTTP(ctx context.Context, addr string, stepper Stepper) error {
	server := &http.Server{Addr: addr, Handler: Handler(stepper)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.L().Sugar().Infow("http_listen", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func handleStep(w http.ResponseWriter, r *http.Request, stepper Stepper) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if stepper == nil {
		http.Error(w, "stepping unavailable", http.StatusServiceUnavailable)
		return
	}
	n := 1
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = v
	}
	if err := stepper.RequestSteps(n); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	AddStepRequests(n)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "%d\n", n)
}
