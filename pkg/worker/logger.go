package worker

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// asynqLogger routes asynq's internal logging through logrus
type asynqLogger struct {
	log logrus.FieldLogger
}

func newAsynqLogger(log logrus.FieldLogger) *asynqLogger {
	return &asynqLogger{log: log.WithField("component", "asynq")}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(fmt.Sprint(args...)) }
