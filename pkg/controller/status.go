package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/avranju/iotedge-k8s/pkg/kubernetes"
	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// StatusTracker maintains a mapping from module name to its most recently
// observed runtime record, fed by Pod watch events. The status map is the
// only mutable state shared across goroutines in the controller; a single
// mutex guards it, and nothing that can block sits under the lock.
type StatusTracker struct {
	mu      sync.Mutex
	records map[string]kubernetes.RuntimeRecord
}

// NewStatusTracker returns an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{records: map[string]kubernetes.RuntimeRecord{}}
}

// HandlePodEvent folds a single Pod watch event into the status map. Pods
// without a module label are ignored; they aren't owned by this controller.
func (t *StatusTracker) HandlePodEvent(eventType watch.EventType, pod *corev1.Pod) {
	moduleName, ok := pod.Labels[kubernetes.LabelModule]
	if !ok {
		return
	}

	if eventType == watch.Deleted {
		t.mu.Lock()
		delete(t.records, moduleName)
		t.mu.Unlock()
		return
	}

	cs, ok := findContainerStatus(pod, moduleName)
	if !ok {
		log.Warnf("pod %s/%s labeled module=%s has no matching container status", pod.Namespace, pod.Name, moduleName)
		return
	}

	record := deriveRecord(moduleName, cs)

	t.mu.Lock()
	t.records[moduleName] = record
	t.mu.Unlock()
}

// GetModules returns a snapshot of the current runtime records. Each record
// is a deep copy, including its StartTime/ExitTime pointees, so a caller
// mutating the pointer itself or the time it points to never reaches back
// into the tracker's internal state.
func (t *StatusTracker) GetModules(ctx context.Context) ([]kubernetes.RuntimeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]kubernetes.RuntimeRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

// cloneRecord copies r along with its StartTime/ExitTime pointees, so the
// returned value shares no mutable state with the record held in the
// tracker's map.
func cloneRecord(r kubernetes.RuntimeRecord) kubernetes.RuntimeRecord {
	if r.StartTime != nil {
		start := *r.StartTime
		r.StartTime = &start
	}
	if r.ExitTime != nil {
		exit := *r.ExitTime
		r.ExitTime = &exit
	}
	return r
}

func findContainerStatus(pod *corev1.Pod, moduleName string) (corev1.ContainerStatus, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if strings.EqualFold(cs.Name, moduleName) {
			return cs, true
		}
	}
	return corev1.ContainerStatus{}, false
}

// deriveRecord maps a container's current and last-observed state onto a
// RuntimeRecord: status/description come from the current state, the image
// digest from the container status's current ImageID, while exit code,
// start time and exit time track the last-known termination cycle so a
// freshly-restarted container doesn't erase the history of its previous run
// until it has something new to report.
func deriveRecord(moduleName string, cs corev1.ContainerStatus) kubernetes.RuntimeRecord {
	record := kubernetes.RuntimeRecord{Name: moduleName, ImageDigest: cs.ImageID}

	switch {
	case cs.State.Running != nil:
		record.Status = kubernetes.StatusRunning
		record.Description = fmt.Sprintf("running since %s", cs.State.Running.StartedAt.Time)
	case cs.State.Terminated != nil:
		record.Status = kubernetes.StatusFailed
		record.Description = describeTermination(cs.State.Terminated)
	case cs.State.Waiting != nil:
		record.Status = kubernetes.StatusFailed
		record.Description = describeWaiting(cs.State.Waiting)
	default:
		record.Status = kubernetes.StatusUnknown
	}

	switch {
	case cs.LastTerminationState.Running != nil:
		start := cs.LastTerminationState.Running.StartedAt.Time
		record.StartTime = &start
	case cs.LastTerminationState.Terminated != nil:
		start := cs.LastTerminationState.Terminated.StartedAt.Time
		finish := cs.LastTerminationState.Terminated.FinishedAt.Time
		record.StartTime = &start
		record.ExitTime = &finish
		record.ExitCode = cs.LastTerminationState.Terminated.ExitCode
	}

	return record
}

func describeTermination(t *corev1.ContainerStateTerminated) string {
	if t.Message != "" {
		return t.Message
	}
	return t.Reason
}

func describeWaiting(w *corev1.ContainerStateWaiting) string {
	if w.Message != "" {
		return w.Message
	}
	return w.Reason
}
