package protocol

// ProtocolVersionReply get_protocol_version 的应答
func ProtocolVersionReply() *Message {
	return NewMessage(MsgProtocolVersion).Set("version", ProtocolVersion)
}

// CarLoaded 连接建立后的一次性通告
func CarLoaded() *Message {
	return NewMessage(MsgCarLoaded)
}

// CollisionWithStartingLine 车辆越过起跑线
func CollisionWithStartingLine(startingLineIndex int, timeStamp float64) *Message {
	return NewMessage(MsgCollisionWithStartingLine).
		Set("starting_line_index", startingLineIndex).
		Set("timeStamp", timeStamp)
}

// NodePositionReply 回显路径节点的位置与朝向
func NodePositionReply(index int, pos [3]float64, rot [4]float64) *Message {
	return NewMessage(MsgNodePosition).
		Set("index", index).
		Set("pos_x", pos[0]).
		Set("pos_y", pos[1]).
		Set("pos_z", pos[2]).
		Set("Qx", rot[0]).
		Set("Qy", rot[1]).
		Set("Qz", rot[2]).
		Set("Qw", rot[3])
}
