// internal/handler/handler_test.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/forecast-service/internal/inference"
	"github.com/SyedDaiam9101/forecast-service/internal/middleware"
	"github.com/SyedDaiam9101/forecast-service/internal/nn"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	runstatus "github.com/SyedDaiam9101/forecast-service/internal/status"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

func newTestHandler(t *testing.T, pre, aft int) (*Handler, *inference.MockEngine) {
	t.Helper()
	p, err := predictor.New(pre, aft)
	if err != nil {
		t.Fatalf("predictor.New failed: %v", err)
	}
	mock := inference.NewMock(pre)
	h := New(p, runstatus.NewTracker("run-1", 3))
	h.SetModel(mock)
	return h, mock
}

// forecastRequest builds a 1x1x2 frame request with batch samples of pre frames.
func forecastRequest(t *testing.T, batch, pre int, extra map[string]interface{}) *structpb.Struct {
	t.Helper()
	data := make([]interface{}, batch*pre*2)
	for i := range data {
		data[i] = float64(i)
	}
	fields := map[string]interface{}{
		"batch":    batch,
		"channels": 1,
		"height":   1,
		"width":    2,
		"data":     data,
	}
	for k, v := range extra {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	return req
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v error, got nil", want)
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("Expected gRPC status error, got: %v", err)
	}
	if st.Code() != want {
		t.Errorf("Expected %v, got: %v (%s)", want, st.Code(), st.Message())
	}
}

func TestForecastWithoutModel(t *testing.T) {
	p, _ := predictor.New(2, 2)
	h := New(p, nil)

	_, err := h.Forecast(context.Background(), forecastRequest(t, 1, 2, nil))
	assertCode(t, err, codes.FailedPrecondition)
}

func TestForecastWithNilRequest(t *testing.T) {
	h, _ := newTestHandler(t, 2, 2)

	_, err := h.Forecast(context.Background(), nil)
	assertCode(t, err, codes.InvalidArgument)
}

func TestForecastDefaultHorizon(t *testing.T) {
	h, mock := newTestHandler(t, 2, 5)

	resp, err := h.Forecast(context.Background(), forecastRequest(t, 1, 2, nil))
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	shape := resp.GetFields()["shape"].GetListValue().GetValues()
	if len(shape) != 5 || shape[1].GetNumberValue() != 5 {
		t.Fatalf("Expected 5 output frames, got shape %v", shape)
	}
	data := resp.GetFields()["data"].GetListValue().GetValues()
	if len(data) != 5*2 {
		t.Fatalf("Expected 10 values, got %d", len(data))
	}
	// Frame 0 is input frame 0 plus one application of the mock.
	if data[0].GetNumberValue() != 1 || data[1].GetNumberValue() != 2 {
		t.Errorf("Unexpected first frame %v %v", data[0], data[1])
	}
	// Frame 4 comes from the third application.
	if data[8].GetNumberValue() != 3 {
		t.Errorf("Expected data[8]=3, got %v", data[8].GetNumberValue())
	}

	if mock.CallCount != 3 {
		t.Errorf("Expected mock.CallCount=3, got %d", mock.CallCount)
	}
}

func TestForecastExplicitHorizon(t *testing.T) {
	h, mock := newTestHandler(t, 2, 5)

	resp, err := h.Forecast(context.Background(), forecastRequest(t, 2, 2, map[string]interface{}{"horizon": 1}))
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	shape := resp.GetFields()["shape"].GetListValue().GetValues()
	if shape[0].GetNumberValue() != 2 || shape[1].GetNumberValue() != 1 {
		t.Errorf("Expected [2 1 ...], got %v", shape)
	}
	if mock.CallCount != 1 {
		t.Errorf("Expected mock.CallCount=1, got %d", mock.CallCount)
	}
}

func TestForecastInvalidRequests(t *testing.T) {
	h, _ := newTestHandler(t, 2, 2)

	tests := []struct {
		name string
		req  *structpb.Struct
	}{
		{"missing batch", func() *structpb.Struct {
			r := forecastRequest(t, 1, 2, nil)
			delete(r.Fields, "batch")
			return r
		}()},
		{"wrong data length", forecastRequest(t, 1, 3, map[string]interface{}{"batch": 1})},
		{"fractional dim", forecastRequest(t, 1, 2, map[string]interface{}{"width": 1.5})},
		{"negative horizon", forecastRequest(t, 1, 2, map[string]interface{}{"horizon": -1})},
		{"huge horizon", forecastRequest(t, 1, 2, map[string]interface{}{"horizon": MaxHorizon + 1})},
		{"string data", forecastRequest(t, 1, 2, map[string]interface{}{"data": []interface{}{"a", "b", "c", "d"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Forecast(context.Background(), tt.req)
			assertCode(t, err, codes.InvalidArgument)
		})
	}
}

func TestForecastRejectsOverflowingShape(t *testing.T) {
	h, _ := newTestHandler(t, 2, 1)
	model, err := nn.NewTemporalLinear(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	h.SetModel(model.Snapshot())

	// batch*P*C*H*W wraps to zero in int64; an empty data list must not pass.
	req, err := structpb.NewStruct(map[string]interface{}{
		"batch":    65536,
		"channels": 65536,
		"height":   65536,
		"width":    65536,
		"data":     []interface{}{},
	})
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	_, err = h.Forecast(context.Background(), req)
	assertCode(t, err, codes.InvalidArgument)

	// A small input may still ask for a forecast that is too large.
	wide := forecastRequest(t, 1, 2, map[string]interface{}{"width": 4096, "height": 4, "horizon": MaxHorizon})
	wide.Fields["data"] = structpb.NewListValue(&structpb.ListValue{})
	_, err = h.Forecast(context.Background(), wide)
	assertCode(t, err, codes.InvalidArgument)
}

func TestGRPCErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("from data: %w", window.ErrTooLarge), codes.InvalidArgument},
		{fmt.Errorf("concat: %w", window.ErrShapeMismatch), codes.InvalidArgument},
		{errors.New("session is nil"), codes.FailedPrecondition},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		assertCode(t, grpcError(tt.err), tt.want)
	}
}

func TestForecastModelError(t *testing.T) {
	h, mock := newTestHandler(t, 2, 2)
	mock.SetError("inference failed: boom")

	_, err := h.Forecast(context.Background(), forecastRequest(t, 1, 2, nil))
	assertCode(t, err, codes.Internal)
}

func TestForecastWithRequestID(t *testing.T) {
	h, _ := newTestHandler(t, 2, 2)

	interceptor := middleware.UnaryRequestIDInterceptor()
	md := metadata.Pairs(middleware.RequestIDHeader, "test-request-123")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: forecastMethod}

	resp, err := interceptor(ctx, forecastRequest(t, 1, 2, nil), info, func(ctx context.Context, req interface{}) (interface{}, error) {
		if got := middleware.GetRequestID(ctx); got != "test-request-123" {
			t.Errorf("Expected request id test-request-123, got %q", got)
		}
		return h.Forecast(ctx, req.(*structpb.Struct))
	})
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if resp == nil {
		t.Fatal("Expected response, got nil")
	}
}

func TestGetStatus(t *testing.T) {
	h, _ := newTestHandler(t, 2, 2)
	h.tracker.ObserveBatch("train", 7, 0.5)

	resp, err := h.GetStatus(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	f := resp.GetFields()
	if f["run_id"].GetStringValue() != "run-1" {
		t.Errorf("Unexpected run_id %v", f["run_id"])
	}
	if f["phase"].GetStringValue() != "train" || f["batch"].GetNumberValue() != 7 {
		t.Errorf("Unexpected phase/batch %v/%v", f["phase"], f["batch"])
	}
	if _, ok := f["best_vali_loss"]; ok {
		t.Error("best_vali_loss should be omitted before validation")
	}
}

func TestGetStatusWithoutTracker(t *testing.T) {
	h := New(nil, nil)
	_, err := h.GetStatus(context.Background(), &emptypb.Empty{})
	assertCode(t, err, codes.FailedPrecondition)
}

func TestGRPCRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t, 2, 3)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	))
	RegisterForecasterServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn)

	var header metadata.MD
	resp, err := client.Forecast(context.Background(), forecastRequest(t, 1, 2, nil), grpc.Header(&header))
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if n := len(resp.GetFields()["data"].GetListValue().GetValues()); n != 3*2 {
		t.Errorf("Expected 6 values, got %d", n)
	}
	if ids := header.Get(middleware.RequestIDHeader); len(ids) != 1 || ids[0] == "" {
		t.Errorf("Expected request id header, got %v", ids)
	}

	st, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.GetFields()["run_id"].GetStringValue() != "run-1" {
		t.Errorf("Unexpected status %v", st)
	}

	_, err = client.Forecast(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument || !strings.Contains(err.Error(), "empty") {
		t.Errorf("Expected InvalidArgument for empty request, got %v", err)
	}
}
