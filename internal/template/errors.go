package template

import "errors"

var (
	// ErrTemplateAbsent is returned when a key was never cached.
	ErrTemplateAbsent = errors.New("template: absent")

	// ErrDirUnreadable is returned by Load when the template directory
	// cannot be walked.
	ErrDirUnreadable = errors.New("template: directory unreadable")
)
