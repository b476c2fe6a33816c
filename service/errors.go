package service

import "errors"

var (
	// 业务错误定义
	ErrRoomNotFound        = errors.New("room not found")
	ErrPollNotFound        = errors.New("poll not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRoomCodeTaken       = errors.New("room code already exists")
	ErrInvalidRoomCode     = errors.New("room code must be 3-10 alphanumeric characters")
	ErrInvalidName         = errors.New("name must be non-empty and within length limit")
	ErrDuplicateName       = errors.New("participant name already used in room")
	ErrInvalidPoll         = errors.New("invalid poll question or options")
	ErrInvalidTimer        = errors.New("timer must be between 1 and 60 minutes")
	ErrPollNotActive       = errors.New("poll is not active")
	ErrNotApproved         = errors.New("participant not approved to vote")
	ErrInvalidOption       = errors.New("option not in poll")
	ErrAlreadyVoted        = errors.New("participant already voted")
	ErrPurgeFailed         = errors.New("room purge failed")
	ErrInfrastructure      = errors.New("store unavailable, retry later")
)
