package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ToStatus maps a domain error to a gRPC status. Internal errors never leak
// their message.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	}

	switch common.KindOf(err) {
	case common.KindUnauthorized:
		return status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	case common.KindConflict:
		return status.Error(codes.AlreadyExists, domainMessage(err))
	case common.KindNotFound:
		return status.Error(codes.NotFound, common.ErrorNotFound.Error())
	case common.KindInvalidArgument:
		return status.Error(codes.InvalidArgument, domainMessage(err))
	default:
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
}

// domainMessage returns the message of the first domain error in the chain,
// without the operation prefixes added while it propagated.
func domainMessage(err error) string {
	var de *common.Error
	if errors.As(err, &de) {
		return de.Error()
	}
	return err.Error()
}
