package domain

// Backend selects which store is authoritative for one operation.
type Backend struct {
	credential string
}

func LocalBackend() Backend {
	return Backend{}
}

// RemoteBackend with an empty credential is the local backend.
func RemoteBackend(credential string) Backend {
	return Backend{credential: credential}
}

func (b Backend) IsRemote() bool {
	return b.credential != ""
}

func (b Backend) Credential() string {
	return b.credential
}

func (b Backend) String() string {
	if b.IsRemote() {
		return "remote"
	}
	return "local"
}
