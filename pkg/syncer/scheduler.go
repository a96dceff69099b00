package syncer

import "time"

// Task is a scheduled callback that can be cancelled.
type Task interface {
	// Stop cancels the task. It returns false if the task already ran or
	// was already stopped.
	Stop() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// timerScheduler schedules with time.AfterFunc.
type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// NewTimerScheduler returns the wall-clock Scheduler.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}
