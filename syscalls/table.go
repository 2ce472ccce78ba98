package syscalls

// Syscall numbers, Linux's generic (riscv64-shared) numbering so a real
// musl/glibc syscall() trampoline needs no translation layer, matching
// spec.md §6's "RISC-V Linux-style" ABI note.
const (
	SYS_GETCWD           = 17
	SYS_DUP              = 23
	SYS_DUP3             = 24
	SYS_FCNTL            = 25
	SYS_IOCTL            = 29
	SYS_MKDIRAT          = 34
	SYS_UNLINKAT         = 35
	SYS_UMOUNT2          = 39
	SYS_MOUNT            = 40
	SYS_STATFS           = 43
	SYS_FACCESSAT        = 48
	SYS_CHDIR            = 49
	SYS_OPENAT           = 56
	SYS_CLOSE            = 57
	SYS_PIPE2            = 59
	SYS_GETDENTS64       = 61
	SYS_LSEEK            = 62
	SYS_READ             = 63
	SYS_WRITE            = 64
	SYS_READV            = 65
	SYS_WRITEV           = 66
	SYS_PREAD64          = 67
	SYS_PWRITE64         = 68
	SYS_SENDFILE         = 71
	SYS_PSELECT6         = 72
	SYS_PPOLL            = 73
	SYS_READLINKAT       = 78
	SYS_NEWFSTATAT       = 79
	SYS_FSTAT            = 80
	SYS_FSYNC            = 82
	SYS_UTIMENSAT        = 88
	SYS_EXIT             = 93
	SYS_EXIT_GROUP       = 94
	SYS_SET_TID_ADDRESS  = 96
	SYS_FUTEX            = 98
	SYS_SET_ROBUST_LIST  = 99
	SYS_GET_ROBUST_LIST  = 100
	SYS_NANOSLEEP        = 101
	SYS_SETITIMER        = 103
	SYS_CLOCK_GETTIME    = 113
	SYS_SYSLOG           = 116
	SYS_SCHED_YIELD      = 124
	SYS_KILL             = 129
	SYS_TKILL            = 130
	SYS_TGKILL           = 131
	SYS_SIGALTSTACK      = 132
	SYS_RT_SIGACTION     = 134
	SYS_RT_SIGPROCMASK   = 135
	SYS_RT_SIGTIMEDWAIT  = 137
	SYS_RT_SIGRETURN     = 139
	SYS_TIMES            = 153
	SYS_GETPGID          = 155
	SYS_UNAME            = 160
	SYS_GETRUSAGE        = 165
	SYS_UMASK            = 166
	SYS_GETPID           = 172
	SYS_GETPPID          = 173
	SYS_GETUID           = 174
	SYS_GETEUID          = 175
	SYS_GETEGID          = 177
	SYS_GETTID           = 178
	SYS_SYSINFO          = 179
	SYS_SOCKET           = 198
	SYS_BIND             = 200
	SYS_LISTEN           = 201
	SYS_ACCEPT           = 202
	SYS_CONNECT          = 203
	SYS_GETSOCKNAME      = 204
	SYS_SENDTO           = 206
	SYS_RECVFROM         = 207
	SYS_SETSOCKOPT       = 208
	SYS_BRK              = 214
	SYS_MUNMAP           = 215
	SYS_MREMAP           = 216
	SYS_CLONE            = 220
	SYS_EXECVE           = 221
	SYS_MMAP             = 222
	SYS_MPROTECT         = 226
	SYS_MADVISE          = 233
	SYS_WAIT4            = 260
	SYS_PRLIMIT64        = 261
	SYS_RENAMEAT2        = 276
	SYS_GETRANDOM        = 278
	SYS_MEMBARRIER       = 283
)
