package handlers

import (
	"errors"
	"net/http"

	"github.com/KiiTuNp/SUPERvote/service"
)

// serviceErrorStatus 把服务层错误映射为HTTP状态码
func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrPollNotFound),
		errors.Is(err, service.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRoomCodeTaken),
		errors.Is(err, service.ErrDuplicateName),
		errors.Is(err, service.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRoomCode),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidPoll),
		errors.Is(err, service.ErrInvalidTimer),
		errors.Is(err, service.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPollNotActive),
		errors.Is(err, service.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInfrastructure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
