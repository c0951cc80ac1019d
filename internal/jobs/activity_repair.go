package jobs

import (
	"fmt"
	"log"
	"sync"

	"github.com/noteduco342/OMInbox-backend/internal/repository"
	"github.com/robfig/cron/v3"
)

// ActivityRepairJob realigns threads.last_activity_at with the newest
// surviving message. Writes keep it correct; this sweep catches rows touched
// outside the service, such as manual SQL or restored backups.
type ActivityRepairJob struct {
	threadRepo repository.ThreadRepositoryInterface

	// overlapping runs would only repeat the same UPDATE
	mu sync.Mutex
}

func NewActivityRepairJob(threadRepo repository.ThreadRepositoryInterface) *ActivityRepairJob {
	return &ActivityRepairJob{threadRepo: threadRepo}
}

// Run performs one sweep and returns how many threads were corrected.
func (j *ActivityRepairJob) Run() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repaired, err := j.threadRepo.RepairLastActivity()
	if err != nil {
		return 0, fmt.Errorf("repair last activity: %w", err)
	}
	if repaired > 0 {
		log.Printf("Repaired last_activity_at on %d thread(s)", repaired)
	}
	return repaired, nil
}

// Scheduled is the cron entry point; errors are logged.
func (j *ActivityRepairJob) Scheduled() {
	log.Println("Running job: ActivityRepair...")
	if _, err := j.Run(); err != nil {
		log.Printf("Activity repair failed: %v", err)
	}
}

// Schedule registers the job on a new cron scheduler without starting it.
// An empty spec returns a nil scheduler.
func Schedule(spec string, job *ActivityRepairJob) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, job.Scheduled); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}
