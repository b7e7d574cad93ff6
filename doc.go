// Package eccfault drives an STM32L4R5 into an uncorrectable flash ECC error
// at a chosen address by interrupting a double-word program with a watchdog
// reset. The delay between the last watchdog feed and the program is found by
// a binary search that survives resets in the RTC backup registers.
//
// All hardware access goes through a Bus, so the same code runs on the MCU
// (cmd/firmware, TinyGo) and against the model in internal/sim.
//
// # References:
//
// ST (https://www.st.com/en/microcontrollers-microprocessors/stm32l4r5zi.html)
//   - [RM0432]: STM32L4+ Series reference manual (https://www.st.com/resource/en/reference_manual/rm0432-stm32l4-series-advanced-armbased-32bit-mcus-stmicroelectronics.pdf)
//   - [DS12023]: STM32L4R5xx/L4R7xx/L4R9xx datasheet (https://www.st.com/resource/en/datasheet/stm32l4r5vi.pdf)
//   - [RM0351]: STM32L47x/L48x/L49x/L4Ax reference manual (https://www.st.com/resource/en/reference_manual/rm0351-stm32l47xxx-stm32l48xxx-stm32l49xxx-and-stm32l4axxx-advanced-armbased-32bit-mcus-stmicroelectronics.pdf)
//   - [UM2179]: STM32 Nucleo-144 boards user manual (https://www.st.com/resource/en/user_manual/um2179-stm32-nucleo144-boards-mb1312-stmicroelectronics.pdf)
//
// ARM
//   - [ARMv7-M]: ARMv7-M Architecture Reference Manual, A3.7 Memory barriers
package eccfault
