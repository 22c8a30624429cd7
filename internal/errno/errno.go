// Package errno maps kernel error numbers to their symbolic names and
// provides the allow/deny error masks used by the stack filter.
package errno

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// MaxErrno bounds the errno space the masks and predicates operate over, per
// the data model's "fixed errno space (<= 4096 values)".
const MaxErrno = 4096

// names holds the canonical errno -> symbolic name table. It is not
// exhaustive of every architecture-specific errno, only the ones a kernel
// trace is realistically going to surface; unknown values render numerically.
var names = map[int]string{
	int(unix.EPERM):        "EPERM",
	int(unix.ENOENT):       "ENOENT",
	int(unix.ESRCH):        "ESRCH",
	int(unix.EINTR):        "EINTR",
	int(unix.EIO):          "EIO",
	int(unix.ENXIO):        "ENXIO",
	int(unix.E2BIG):        "E2BIG",
	int(unix.ENOEXEC):      "ENOEXEC",
	int(unix.EBADF):        "EBADF",
	int(unix.ECHILD):       "ECHILD",
	int(unix.EAGAIN):       "EAGAIN",
	int(unix.ENOMEM):       "ENOMEM",
	int(unix.EACCES):       "EACCES",
	int(unix.EFAULT):       "EFAULT",
	int(unix.ENOTBLK):      "ENOTBLK",
	int(unix.EBUSY):        "EBUSY",
	int(unix.EEXIST):       "EEXIST",
	int(unix.EXDEV):        "EXDEV",
	int(unix.ENODEV):       "ENODEV",
	int(unix.ENOTDIR):      "ENOTDIR",
	int(unix.EISDIR):       "EISDIR",
	int(unix.EINVAL):       "EINVAL",
	int(unix.ENFILE):       "ENFILE",
	int(unix.EMFILE):       "EMFILE",
	int(unix.ENOTTY):       "ENOTTY",
	int(unix.ETXTBSY):      "ETXTBSY",
	int(unix.EFBIG):        "EFBIG",
	int(unix.ENOSPC):       "ENOSPC",
	int(unix.ESPIPE):       "ESPIPE",
	int(unix.EROFS):        "EROFS",
	int(unix.EMLINK):       "EMLINK",
	int(unix.EPIPE):        "EPIPE",
	int(unix.EDOM):         "EDOM",
	int(unix.ERANGE):       "ERANGE",
	int(unix.EDEADLK):      "EDEADLK",
	int(unix.ENAMETOOLONG): "ENAMETOOLONG",
	int(unix.ENOLCK):       "ENOLCK",
	int(unix.ENOSYS):       "ENOSYS",
	int(unix.ENOTEMPTY):    "ENOTEMPTY",
	int(unix.ELOOP):        "ELOOP",
	int(unix.ENOMSG):       "ENOMSG",
	int(unix.EIDRM):        "EIDRM",
	int(unix.ENOSTR):       "ENOSTR",
	int(unix.ENODATA):      "ENODATA",
	int(unix.ETIME):        "ETIME",
	int(unix.ENOSR):        "ENOSR",
	int(unix.EREMOTE):      "EREMOTE",
	int(unix.ENOLINK):      "ENOLINK",
	int(unix.EPROTO):       "EPROTO",
	int(unix.EMULTIHOP):    "EMULTIHOP",
	int(unix.EBADMSG):      "EBADMSG",
	int(unix.EOVERFLOW):    "EOVERFLOW",
	int(unix.EILSEQ):       "EILSEQ",
	int(unix.EUSERS):       "EUSERS",
	int(unix.ENOTSOCK):     "ENOTSOCK",
	int(unix.EDESTADDRREQ): "EDESTADDRREQ",
	int(unix.EMSGSIZE):     "EMSGSIZE",
	int(unix.EPROTOTYPE):   "EPROTOTYPE",
	int(unix.ENOPROTOOPT):  "ENOPROTOOPT",
	int(unix.EPROTONOSUPPORT): "EPROTONOSUPPORT",
	int(unix.ESOCKTNOSUPPORT): "ESOCKTNOSUPPORT",
	int(unix.EOPNOTSUPP):      "EOPNOTSUPP",
	int(unix.EPFNOSUPPORT):    "EPFNOSUPPORT",
	int(unix.EAFNOSUPPORT):    "EAFNOSUPPORT",
	int(unix.EADDRINUSE):      "EADDRINUSE",
	int(unix.EADDRNOTAVAIL):   "EADDRNOTAVAIL",
	int(unix.ENETDOWN):        "ENETDOWN",
	int(unix.ENETUNREACH):     "ENETUNREACH",
	int(unix.ENETRESET):       "ENETRESET",
	int(unix.ECONNABORTED):    "ECONNABORTED",
	int(unix.ECONNRESET):      "ECONNRESET",
	int(unix.ENOBUFS):         "ENOBUFS",
	int(unix.EISCONN):         "EISCONN",
	int(unix.ENOTCONN):        "ENOTCONN",
	int(unix.ESHUTDOWN):       "ESHUTDOWN",
	int(unix.ETOOMANYREFS):    "ETOOMANYREFS",
	int(unix.ETIMEDOUT):       "ETIMEDOUT",
	int(unix.ECONNREFUSED):    "ECONNREFUSED",
	int(unix.EHOSTDOWN):       "EHOSTDOWN",
	int(unix.EHOSTUNREACH):    "EHOSTUNREACH",
	int(unix.EALREADY):        "EALREADY",
	int(unix.EINPROGRESS):     "EINPROGRESS",
	int(unix.ESTALE):          "ESTALE",
	int(unix.EDQUOT):          "EDQUOT",
	int(unix.ECANCELED):       "ECANCELED",
	int(unix.EOWNERDEAD):      "EOWNERDEAD",
	int(unix.ENOTRECOVERABLE): "ENOTRECOVERABLE",
	int(unix.ERESTART):        "ERESTART",
}

var byName map[string]int

// aliases maps alternate spellings of an errno onto the canonical name
// already present in names, for ErrnoOfName input only: on Linux
// EOPNOTSUPP/ENOTSUP, EAGAIN/EWOULDBLOCK and EDEADLK/EDEADLOCK are the same
// numeric value, so only one spelling of each can be a names key (a map
// literal can't repeat a key) but both should still parse on the command
// line.
var aliases = map[string]string{
	"ENOTSUP":     "EOPNOTSUPP",
	"EWOULDBLOCK": "EAGAIN",
	"EDEADLOCK":   "EDEADLK",
}

func init() {
	byName = make(map[string]int, len(names)+len(aliases))
	for k, v := range names {
		byName[v] = k
	}
	for alias, canonical := range aliases {
		byName[alias] = byName[canonical]
	}
}

// NameOfErrno returns the symbolic name for a positive errno value, e.g.
// NameOfErrno(2) == "ENOENT". Unknown values format as a bare number.
func NameOfErrno(e int) string {
	if n, ok := names[e]; ok {
		return n
	}
	return strconv.Itoa(e)
}

// ErrnoOfName parses a name in either "-ENOENT" or "ENOENT" form (also
// accepting a bare decimal number) and returns its errno value.
func ErrnoOfName(s string) (int, error) {
	s = strings.TrimPrefix(s, "-")
	if n, ok := byName[s]; ok {
		return n, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	return 0, fmt.Errorf("errno: unknown error name %q", s)
}

// FormatSigned renders a possibly-negative kernel return value the way the
// renderer prints it: "[NULL]" is handled by the caller, "[-ENOENT]" for
// known negative errnos, "[-12345]" otherwise.
func FormatSigned(v int64) string {
	if v >= 0 {
		return fmt.Sprintf("[%d]", v)
	}
	e := int(-v)
	return fmt.Sprintf("[-%s]", NameOfErrno(e))
}
