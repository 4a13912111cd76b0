package sequencer

import "golang.org/x/sys/unix"

// playerNice is the niceness requested for the player thread. Lowering it
// below zero needs CAP_SYS_NICE or a matching RLIMIT_NICE.
const playerNice = -10

// raisePriority lowers the niceness of the calling thread. The caller must
// have locked itself to its OS thread.
func raisePriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), playerNice)
}
