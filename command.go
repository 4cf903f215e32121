package ecat

// A Command is an EtherCAT datagram command.  The command selects the
// addressing mode of a datagram and whether slaves read, write, or both.
type Command uint8

const (
	// CommandNOP is ignored by all slaves.
	CommandNOP Command = 0

	// CommandAPRD is an auto increment physical read.  Each slave increments
	// ADP; the slave which sees ADP 0 reads.
	CommandAPRD Command = 1

	// CommandAPWR is an auto increment physical write.
	CommandAPWR Command = 2

	// CommandAPRW is an auto increment physical read/write.
	CommandAPRW Command = 3

	// CommandFPRD is a configured address physical read.  The slave whose
	// configured station address equals ADP reads.
	CommandFPRD Command = 4

	// CommandFPWR is a configured address physical write.
	CommandFPWR Command = 5

	// CommandFPRW is a configured address physical read/write.
	CommandFPRW Command = 6

	// CommandBRD is a broadcast read.  All slaves OR their data into the
	// datagram.
	CommandBRD Command = 7

	// CommandBWR is a broadcast write.
	CommandBWR Command = 8

	// CommandBRW is a broadcast read/write.
	CommandBRW Command = 9

	// CommandLRD is a logical memory read.
	CommandLRD Command = 10

	// CommandLWR is a logical memory write.
	CommandLWR Command = 11

	// CommandLRW is a logical memory read/write.
	CommandLRW Command = 12

	// CommandARMW is an auto increment physical read, multiple write.  The
	// slave at ADP 0 reads, all following slaves write the read data.
	CommandARMW Command = 13

	// CommandFRMW is a configured address physical read, multiple write.
	// The addressed slave reads, all following slaves write the read data.
	CommandFRMW Command = 14
)

// readOnly reports whether c carries no data towards the slaves.  Data of
// read only datagrams is zeroed so a frame is always in a known state.
func (c Command) readOnly() bool {
	switch c {
	case CommandNOP, CommandAPRD, CommandFPRD, CommandBRD, CommandLRD:
		return true
	}
	return false
}
