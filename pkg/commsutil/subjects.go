package commsutil

// Registration subjects carrying directory traffic between processes.
const (
	SubjectStubRegister    = "svc.registry.stub.register"
	SubjectStubUnregister  = "svc.registry.stub.unregister"
	SubjectProxyRegister   = "svc.registry.proxy.register"
	SubjectProxyUnregister = "svc.registry.proxy.unregister"
	SubjectSyncRequest     = "svc.registry.sync.request"

	subjectSyncReplyPrefix = "svc.registry.sync.reply."
)

// SyncReplySubject returns the per-process subject directory snapshots are
// replied to during the join handshake.
func SyncReplySubject(instanceID string) string {
	return subjectSyncReplyPrefix + instanceID
}
