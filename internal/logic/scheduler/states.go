package scheduler

// State is a controller state.
type State int

const (
	StateSleep State = iota
	StateCommRead
	StateCheckQueues
	StateCommProcess
	StateInstrProcess
	StateMotorCalibrate
	StateMotorControl
	StateMotorWait
	StateCameraExecute
	StateMotorOff
	numStates
)

var stateNames = [numStates]string{
	StateSleep:          "SLEEP",
	StateCommRead:       "COMM_READ",
	StateCheckQueues:    "CHECK_QUEUES",
	StateCommProcess:    "COMM_PROCESS",
	StateInstrProcess:   "INSTR_PROCESS",
	StateMotorCalibrate: "MOTOR_CALIBRATE",
	StateMotorControl:   "MOTOR_CONTROL",
	StateMotorWait:      "MOTOR_WAIT",
	StateCameraExecute:  "CAMERA_EXECUTE",
	StateMotorOff:       "MOTOR_OFF",
}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// transitions lists every state a state may hand over to. Step refuses
// anything not listed here.
var transitions = [numStates][]State{
	StateSleep:          {StateCommRead, StateMotorCalibrate},
	StateCommRead:       {StateCheckQueues},
	StateCheckQueues:    {StateCommProcess, StateInstrProcess, StateMotorWait, StateCommRead, StateMotorControl, StateMotorOff, StateSleep},
	StateCommProcess:    {StateSleep, StateMotorOff, StateCommRead},
	StateInstrProcess:   {StateSleep},
	StateMotorCalibrate: {StateCommRead},
	StateMotorControl:   {StateMotorWait, StateCommRead, StateMotorOff},
	StateMotorWait:      {StateCommRead, StateCameraExecute},
	StateCameraExecute:  {StateCommRead},
	StateMotorOff:       {StateSleep},
}

// sameTick marks states whose successor runs within the same Step.
var sameTick = [numStates]bool{
	StateCommRead:     true,
	StateMotorControl: true,
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
