// internal/handler/handler.go
package handler

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/forecast-service/internal/metrics"
	"github.com/SyedDaiam9101/forecast-service/internal/middleware"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	runstatus "github.com/SyedDaiam9101/forecast-service/internal/status"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

const (
	// MaxHorizon bounds the frames a single Forecast call may request.
	MaxHorizon = 1024
	// MaxForecastElements bounds the values of both the decoded input and
	// the forecast returned for it.
	MaxForecastElements = 1 << 22
)

// Handler implements the ForecasterServer interface.
// The served model is swapped in by the training loop through SetModel.
type Handler struct {
	pred    *predictor.Predictor
	tracker *runstatus.Tracker

	mu    sync.RWMutex
	model predictor.Model
}

// New creates a new Handler that forecasts with pred and reports tracker.
// Either may be nil; the corresponding RPC then fails with FailedPrecondition.
func New(pred *predictor.Predictor, tracker *runstatus.Tracker) *Handler {
	return &Handler{
		pred:    pred,
		tracker: tracker,
	}
}

// SetModel publishes m as the model used by Forecast.
// m must not be trained further once published.
func (h *Handler) SetModel(m predictor.Model) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.model = m
}

func (h *Handler) currentModel() predictor.Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

// GetStatus returns a snapshot of the run as a struct.
func (h *Handler) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if h.tracker == nil {
		return nil, failedPreconditionError("status tracker not initialized")
	}

	s := h.tracker.Snapshot()
	fields := map[string]interface{}{
		"run_id":      s.RunID,
		"phase":       string(s.Phase),
		"epoch":       s.Epoch,
		"epochs":      s.Epochs,
		"batch":       s.Batch,
		"num_updates": s.NumUpdates,
		"batch_loss":  s.BatchLoss,
		"train_loss":  s.TrainLoss,
		"vali_loss":   s.ValiLoss,
		"best_epoch":  s.BestEpoch,
		"lr":          s.LR,
		"test_mse":    s.TestMSE,
		"test_mae":    s.TestMAE,
		"updated_at":  s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	// +Inf until the first validation pass completes
	if !math.IsInf(s.BestValiLoss, 0) {
		fields["best_vali_loss"] = s.BestValiLoss
	}
	if s.Error != "" {
		fields["error"] = s.Error
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcError(err)
	}
	return out, nil
}

// Forecast decodes a [batch, P, C, H, W] window from req and returns the
// requested number of forecast frames.
//
// Request fields: batch, channels, height, width, data and the optional
// horizon (defaults to the configured aft_seq_length). Frames are implied by
// the configured pre_seq_length.
func (h *Handler) Forecast(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	// Get request ID for logging
	requestID := middleware.GetRequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}

	if req == nil || len(req.GetFields()) == 0 {
		return nil, invalidArgumentError("request cannot be nil or empty")
	}
	if h.pred == nil {
		return nil, failedPreconditionError("predictor not initialized")
	}
	m := h.currentModel()
	if m == nil {
		return nil, failedPreconditionError("no model published yet")
	}

	x, horizon, err := h.decode(req)
	if err != nil {
		return nil, err
	}
	metrics.RecordForecastBatch(x.Batch())

	// Run the rollout with timing
	inferStart := time.Now()
	y, err := predictor.Predict(m, x, h.pred.PreLen, horizon)
	inferDuration := time.Since(inferStart)
	metrics.RecordForecastLatency(inferDuration.Seconds())

	if err != nil {
		log.Printf("[%s] Forecast error: %v", requestID, err)
		return nil, grpcError(err)
	}

	out, err := encode(y)
	if err != nil {
		return nil, grpcError(err)
	}

	// Log batch metrics
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	log.Printf("[%s] Forecast: batch_size=%d, horizon=%d, inference_ms=%.2f, total_ms=%.2f",
		requestID, x.Batch(), horizon, float64(inferDuration.Microseconds())/1000.0, latencyMs)

	return out, nil
}

func (h *Handler) decode(req *structpb.Struct) (*window.Window, int, error) {
	fields := req.GetFields()

	dims := make(map[string]int, 4)
	for _, name := range []string{"batch", "channels", "height", "width"} {
		n, err := intField(fields, name)
		if err != nil {
			return nil, 0, err
		}
		if n <= 0 {
			return nil, 0, invalidArgumentError("%s must be positive, got %d", name, n)
		}
		dims[name] = n
	}

	horizon := h.pred.AftLen
	if _, ok := fields["horizon"]; ok {
		n, err := intField(fields, "horizon")
		if err != nil {
			return nil, 0, err
		}
		if n < 0 || n > MaxHorizon {
			return nil, 0, invalidArgumentError("horizon must be in [0, %d], got %d", MaxHorizon, n)
		}
		horizon = n
	}

	expectedLen, err := window.Elements(MaxForecastElements, dims["batch"], h.pred.PreLen, dims["channels"], dims["height"], dims["width"])
	if err != nil {
		return nil, 0, invalidArgumentError("input too large: %v", err)
	}
	if _, err := window.Elements(MaxForecastElements, dims["batch"], horizon, dims["channels"], dims["height"], dims["width"]); err != nil {
		return nil, 0, invalidArgumentError("forecast too large: %v", err)
	}

	values := fields["data"].GetListValue().GetValues()
	if len(values) != expectedLen {
		return nil, 0, invalidArgumentError(
			"data has wrong length: got %d, expected %d for %d frames",
			len(values), expectedLen, h.pred.PreLen)
	}

	data := make([]float32, len(values))
	for i, v := range values {
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return nil, 0, invalidArgumentError("data[%d] is not a number", i)
		}
		data[i] = float32(v.GetNumberValue())
	}

	x, err := window.FromData(data, dims["batch"], h.pred.PreLen, dims["channels"], dims["height"], dims["width"])
	if err != nil {
		return nil, 0, grpcError(err)
	}
	return x, horizon, nil
}

func intField(fields map[string]*structpb.Value, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, invalidArgumentError("missing field %q", name)
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, invalidArgumentError("field %q is not a number", name)
	}
	f := v.GetNumberValue()
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalidArgumentError("field %q must be an integer, got %v", name, f)
	}
	return int(f), nil
}

func encode(y *window.Window) (*structpb.Struct, error) {
	s := y.Shape()
	shape := make([]interface{}, len(s))
	for i, d := range s {
		shape[i] = d
	}
	data := make([]interface{}, len(y.Data))
	for i, v := range y.Data {
		data[i] = float64(v)
	}
	return structpb.NewStruct(map[string]interface{}{
		"shape": shape,
		"data":  data,
	})
}

// Ensure Handler implements ForecasterServer at compile time
var _ ForecasterServer = (*Handler)(nil)
