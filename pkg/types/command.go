package types

// type of policy command
type CommandType uint

const (
	CommandTypeRegister CommandType = iota + 1
	CommandTypeAdmit
)

// interface all policy commands implement
type Command interface {
	Type() CommandType
}

// inserts or overwrites the config for a key
type RegisterCmd struct {
	Key    string
	Config OperationConfig
}

func (c RegisterCmd) Type() CommandType { return CommandTypeRegister }

// asks permission to run the operation identified by key now
type AdmitCmd struct {
	Key string
}

func (c AdmitCmd) Type() CommandType { return CommandTypeAdmit }
