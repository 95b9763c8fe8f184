package syscall

// savedUserRSP/RCX/R11 stash the user-mode registers SYSCALL doesn't save
// for us, across the switch onto the kernel stack in syscallEntry.
var (
	savedUserRSP uint64
	savedUserRCX uint64
	savedUserR11 uint64
)

// currentKernelRSP is the stack pointer syscallEntry switches to before
// calling into Go. SetKernelStack updates it whenever the scheduler
// switches the running task, so a syscall taken right after a switch still
// lands on the correct kernel stack.
var currentKernelRSP uint64

// SetKernelStack records the kernel stack top a syscall entered while the
// given task is current should run on. Called by the scheduler on every
// task switch, mirroring gdt.SetKernelStack's role for interrupt entry.
func SetKernelStack(rsp0 uintptr) {
	currentKernelRSP = uint64(rsp0)
}
