package domain

// RawStatus is what a probe returns before evaluation.
type RawStatus interface {
	CheckType() CheckType
}

// UserFactors is the verified-factor state of one target user.
type UserFactors struct {
	ID          string
	Email       string
	HasVerified bool
}

// MFAStatus is the raw user listing of a target project.
type MFAStatus struct {
	Users []UserFactors
}

func (*MFAStatus) CheckType() CheckType { return CheckMFA }

// RLSStatus is the raw table listing returned by check_rls_status.
type RLSStatus struct {
	Tables []TableStatus
}

func (*RLSStatus) CheckType() CheckType { return CheckRLS }

// PITRStatus is the raw settings object returned by check_pitr_status.
type PITRStatus struct {
	Enabled        bool
	WALLevel       string
	ArchiveCommand string
}

func (*PITRStatus) CheckType() CheckType { return CheckPITR }
