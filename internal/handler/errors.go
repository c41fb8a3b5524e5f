// internal/handler/errors.go
package handler

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// grpcError maps known model and rollout errors to appropriate gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	errMsg := err.Error()

	// Map specific error patterns to gRPC status codes
	switch {
	case errors.Is(err, window.ErrShapeMismatch):
		return status.Errorf(codes.InvalidArgument, "window shape mismatch: %v", err)

	case errors.Is(err, window.ErrTooLarge):
		return status.Errorf(codes.InvalidArgument, "%v", err)

	case strings.Contains(errMsg, "empty input batch"):
		return status.Errorf(codes.InvalidArgument, "empty input batch")

	case strings.Contains(errMsg, "invalid sequence lengths"):
		return status.Errorf(codes.InvalidArgument, "%v", err)

	case strings.Contains(errMsg, "session is nil"):
		return status.Errorf(codes.FailedPrecondition, "model not initialized")

	case strings.Contains(errMsg, "failed to create input tensor"),
		strings.Contains(errMsg, "failed to create output tensor"):
		return status.Errorf(codes.Internal, "tensor creation failed: %v", err)

	case strings.Contains(errMsg, "inference failed"):
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)

	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}
