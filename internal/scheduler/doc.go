// Package scheduler matches idle workers to queued jobs and keeps clients
// informed of where their jobs stand.
//
// Every method runs as one registry transaction and ends with an assignment
// pass when it may have freed a worker or queued a job. The pass walks idle
// workers in connection order and pops the queue head for each; paused heads
// rotate to the tail and are remembered in a skip set so a queue of paused
// jobs ends the pass instead of spinning. Afterwards queue positions are
// recomputed and each session receives a queue-update holding only its own
// jobs.
//
// Jobs already assigned to a worker cannot be removed. They leave the
// registry only through Fail, Complete or WorkerDisconnected.
package scheduler
