// Package notify delivers triggered alerts to their rule's channels.
// Every channel is delivered independently: one failing or hanging channel
// never affects its siblings, and failures are reported through the Result
// and the log rather than returned.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/telemetry"
)

const DefaultDeliveryTimeout = 10 * time.Second

var ErrNoNotifier = errors.New("no notifier for channel kind")

// Notifier delivers one alert to one channel.
type Notifier interface {
	Kind() models.ChannelKind
	Notify(ctx context.Context, alert *models.Alert, channel models.AlertChannel) error
}

// DeliveryError is a failed delivery to a single channel.
type DeliveryError struct {
	Channel    models.ChannelKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery failed with HTTP %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ChannelOutcome is the result of one channel in a dispatch.
type ChannelOutcome struct {
	Index   int
	Kind    models.ChannelKind
	Skipped bool
	Err     error
}

type Result struct {
	AlertID  string
	Outcomes []ChannelOutcome
}

func (r Result) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.Err == nil {
			n++
		}
	}
	return n
}

func (r Result) Failed() []ChannelOutcome {
	var out []ChannelOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (r Result) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

type Dispatcher struct {
	notifiers map[models.ChannelKind]Notifier
	timeout   time.Duration
	log       logrus.FieldLogger
	metrics   *telemetry.Metrics
}

func NewDispatcher(log logrus.FieldLogger, metrics *telemetry.Metrics, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	d := &Dispatcher{
		notifiers: make(map[models.ChannelKind]Notifier, len(notifiers)),
		timeout:   timeout,
		log:       log,
		metrics:   metrics,
	}
	for _, n := range notifiers {
		d.notifiers[n.Kind()] = n
	}
	return d
}

// Dispatch delivers alert to every enabled channel concurrently and waits for
// all of them. It never fails as a whole.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, channels []models.AlertChannel) Result {
	res := Result{AlertID: alert.ID, Outcomes: make([]ChannelOutcome, len(channels))}

	var g errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		res.Outcomes[i] = ChannelOutcome{Index: i, Kind: ch.Kind}
		if !ch.Enabled {
			res.Outcomes[i].Skipped = true
			continue
		}

		g.Go(func() error {
			err := d.deliver(ctx, alert, ch)
			res.Outcomes[i].Err = err
			d.record(alert, ch.Kind, err)
			return nil
		})
	}
	_ = g.Wait()

	return res
}

func (d *Dispatcher) deliver(ctx context.Context, alert *models.Alert, ch models.AlertChannel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{Channel: ch.Kind, Err: fmt.Errorf("notifier panicked: %v", r)}
		}
	}()

	n, ok := d.notifiers[ch.Kind]
	if !ok {
		return &DeliveryError{Channel: ch.Kind, Err: ErrNoNotifier}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := n.Notify(ctx, alert.Clone(), ch); err != nil {
		var de *DeliveryError
		if errors.As(err, &de) {
			return err
		}
		return &DeliveryError{Channel: ch.Kind, Err: err}
	}
	return nil
}

func (d *Dispatcher) record(alert *models.Alert, kind models.ChannelKind, err error) {
	log := d.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  alert.RuleID,
		"channel":  kind,
	})
	if err != nil {
		d.metrics.Deliveries.WithLabelValues(string(kind), "error").Inc()
		log.WithError(err).Error("alert delivery failed")
		return
	}
	d.metrics.Deliveries.WithLabelValues(string(kind), "ok").Inc()
	log.Debug("alert delivered")
}
